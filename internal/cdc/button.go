package cdc

import "strings"

// Button is a logical command decoded from the head unit's DataOut line.
type Button int

const (
	Unknown Button = iota
	NextTrack
	PrevTrack
	NextDisc
	PrevDisc
	PlayPause
	ScanToggle
	RandomToggle
	Stop
	Disc1
	Disc2
	Disc3
	Disc4
	Disc5
	Disc6
)

var buttonNames = map[Button]string{
	Unknown:      "UNKNOWN",
	NextTrack:    "NEXT_TRACK",
	PrevTrack:    "PREV_TRACK",
	NextDisc:     "NEXT_DISC",
	PrevDisc:     "PREV_DISC",
	PlayPause:    "PLAY_PAUSE",
	ScanToggle:   "SCAN",
	RandomToggle: "RANDOM",
	Stop:         "STOP",
	Disc1:        "CD1",
	Disc2:        "CD2",
	Disc3:        "CD3",
	Disc4:        "CD4",
	Disc5:        "CD5",
	Disc6:        "CD6",
}

func (b Button) String() string {
	if name, ok := buttonNames[b]; ok {
		return name
	}
	return "UNKNOWN"
}

// ButtonHandler receives decoded buttons. It runs on the scanner's poll
// cycle and must not block.
type ButtonHandler func(Button)

// buttonCodes maps the command byte of a valid frame to a button.
// Codes confirmed on an RNS-MFD head unit.
var buttonCodes = map[byte]Button{
	0xF8: NextTrack,
	0x78: PrevTrack,
	0x0C: Disc1,
	0x8C: Disc2,
	0x4C: Disc3,
	0xCC: Disc4,
	0x2C: Disc5,
	0xAC: Disc6,
	0xA0: ScanToggle,
	0xE0: RandomToggle,
}

// inertCodes are sent by the head unit but carry no action.
var inertCodes = map[byte]string{
	0x14: "repeat",
	0x38: "cd confirm",
}

// ButtonForCode returns the button for a command byte, or Unknown.
func ButtonForCode(code byte) Button {
	if b, ok := buttonCodes[code]; ok {
		return b
	}
	return Unknown
}

// CodeForButton is the inverse of ButtonForCode. ok is false for buttons the
// head unit never sends.
func CodeForButton(b Button) (code byte, ok bool) {
	for c, btn := range buttonCodes {
		if btn == b {
			return c, true
		}
	}
	return 0, false
}

// ParseButton looks a button up by its String name, case-insensitively.
func ParseButton(name string) (Button, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for b, n := range buttonNames {
		if b != Unknown && n == name {
			return b, true
		}
	}
	return Unknown, false
}
