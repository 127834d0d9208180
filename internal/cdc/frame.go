package cdc

import (
	"fmt"
	"strings"
)

// Frame is one 8-byte status packet sent to the head unit.
type Frame [8]byte

// Fixed bytes of the status frames.
const (
	cmdPlay = 0x34
	cmdIdle = 0x74

	discBase  = 0xBF
	trailPlay = 0x3C
	trailIdle = 0x7C

	idleStatus     = 0x8F
	playStatus     = 0xCF
	initMute       = 0xEF
	leadInMute     = 0xAE
	announceMode   = 0xB7
	announceStatus = 0xFF
	blank          = 0xFF
	neutralMode    = 0xFF

	// Announce frames advertise 99 tracks, 99:59.
	announceTrack   = 0xFF - 0x99
	announceMinutes = 0xFF - 0x99
	announceSeconds = 0xFF - 0x59

	// Disc-loaded indicator cycles 0x2E (CD1) down to 0x29 (CD6).
	discLoadFirst = 0x2E
	discLoadLast  = 0x29
)

// Mode is the scan/random combination shown on the head unit.
type Mode uint8

const (
	ModeNormal Mode = iota
	ModeRandom
	ModeScan
	ModeScanRandom
)

var modeBytes = [...]byte{
	ModeNormal:     0x00,
	ModeRandom:     0x04,
	ModeScan:       0xD0,
	ModeScanRandom: 0xD4,
}

// ModeOf returns the mode for a scan/random combination.
func ModeOf(scan, random bool) Mode {
	switch {
	case scan && random:
		return ModeScanRandom
	case scan:
		return ModeScan
	case random:
		return ModeRandom
	default:
		return ModeNormal
	}
}

// Byte is the value of frame byte 5 for this mode.
func (m Mode) Byte() byte {
	return modeBytes[m]
}

// IdleFrame is sent while the changer reports "no media".
func IdleFrame(disc, track uint8) Frame {
	return Frame{cmdIdle, discBase - disc, 0xFF - track, blank, blank, blank, idleStatus, trailIdle}
}

// AnnounceFrame advertises a loaded disc during start-up.
func AnnounceFrame(discLoad byte) Frame {
	return Frame{cmdPlay, discLoad, announceTrack, announceMinutes, announceSeconds, announceMode, announceStatus, trailPlay}
}

// InitFrame is the non-announce frame of the init phase.
func InitFrame(disc, track uint8) Frame {
	return Frame{cmdPlay, discBase - disc, 0xFF - track, blank, blank, blank, initMute, trailPlay}
}

// LeadInAnnounceFrame announces the selected disc before play starts.
func LeadInAnnounceFrame(disc uint8) Frame {
	return AnnounceFrame(disc&0x0F | 0x20)
}

// LeadInFrame is the non-announce frame of the lead-in phase.
func LeadInFrame(disc, track uint8) Frame {
	return Frame{cmdPlay, discBase - disc, 0xFF - track, blank, blank, blank, leadInMute, trailPlay}
}

// PlayFrame is the steady-state frame. Track and time are BCD encoded and
// complemented.
func PlayFrame(disc, track, minutes, seconds uint8, mode byte) Frame {
	return Frame{
		cmdPlay,
		discBase - disc,
		0xFF - ToBCD(track),
		0xFF - ToBCD(minutes),
		0xFF - ToBCD(seconds),
		mode,
		playStatus,
		trailPlay,
	}
}

// String renders the frame as space separated hex.
func (f Frame) String() string {
	var sb strings.Builder
	for i, b := range f {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// Describe decodes play and idle frames for logs.
func (f Frame) Describe() string {
	switch f[0] {
	case cmdPlay:
		if f[6] != playStatus {
			return "INIT"
		}
		disc := discBase - f[1]
		return fmt.Sprintf("PLAY CD%d T%d %02d:%02d", disc,
			FromBCD(0xFF-f[2]), FromBCD(0xFF-f[3]), FromBCD(0xFF-f[4]))
	case cmdIdle:
		return "IDLE"
	default:
		return "?"
	}
}

// ToBCD encodes 0..99 as two BCD nibbles. Larger values clamp to 99.
func ToBCD(v uint8) byte {
	if v > 99 {
		v = 99
	}
	return (v/10)<<4 | v%10
}

// FromBCD decodes two BCD nibbles.
func FromBCD(b byte) uint8 {
	return (b>>4)*10 + b&0x0F
}
