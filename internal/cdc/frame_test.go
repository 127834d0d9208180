package cdc

import "testing"

func TestFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  Frame
	}{
		{"play", PlayFrame(1, 5, 3, 45, ModeNormal.Byte()), Frame{0x34, 0xBE, 0xFA, 0xFC, 0xBA, 0x00, 0xCF, 0x3C}},
		{"play scan random", PlayFrame(6, 99, 0, 0, ModeScanRandom.Byte()), Frame{0x34, 0xB9, 0x66, 0xFF, 0xFF, 0xD4, 0xCF, 0x3C}},
		{"idle", IdleFrame(1, 1), Frame{0x74, 0xBE, 0xFE, 0xFF, 0xFF, 0xFF, 0x8F, 0x7C}},
		{"announce", AnnounceFrame(0x2E), Frame{0x34, 0x2E, 0x66, 0x66, 0xA6, 0xB7, 0xFF, 0x3C}},
		{"init", InitFrame(2, 3), Frame{0x34, 0xBD, 0xFC, 0xFF, 0xFF, 0xFF, 0xEF, 0x3C}},
		{"lead-in announce", LeadInAnnounceFrame(1), Frame{0x34, 0x21, 0x66, 0x66, 0xA6, 0xB7, 0xFF, 0x3C}},
		{"lead-in", LeadInFrame(1, 1), Frame{0x34, 0xBE, 0xFE, 0xFF, 0xFF, 0xFF, 0xAE, 0x3C}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.frame != tt.want {
				t.Errorf("frame = %s, want %s", tt.frame, tt.want)
			}
		})
	}
}

func TestModeOf(t *testing.T) {
	tests := []struct {
		scan, random bool
		want         byte
	}{
		{false, false, 0x00},
		{false, true, 0x04},
		{true, false, 0xD0},
		{true, true, 0xD4},
	}
	for _, tt := range tests {
		if got := ModeOf(tt.scan, tt.random).Byte(); got != tt.want {
			t.Errorf("ModeOf(%v, %v) = %02X, want %02X", tt.scan, tt.random, got, tt.want)
		}
	}
}

func TestBCD(t *testing.T) {
	tests := []struct {
		in   uint8
		want byte
	}{
		{0, 0x00},
		{9, 0x09},
		{10, 0x10},
		{45, 0x45},
		{99, 0x99},
		{150, 0x99},
	}
	for _, tt := range tests {
		if got := ToBCD(tt.in); got != tt.want {
			t.Errorf("ToBCD(%d) = %02X, want %02X", tt.in, got, tt.want)
		}
	}
	if got := FromBCD(0x45); got != 45 {
		t.Errorf("FromBCD(45) = %d, want 45", got)
	}
}

func TestFrame_StringAndDescribe(t *testing.T) {
	f := PlayFrame(1, 5, 3, 45, 0)
	if got := f.String(); got != "34 BE FA FC BA 00 CF 3C" {
		t.Errorf("String() = %q", got)
	}
	if got := f.Describe(); got != "PLAY CD1 T5 03:45" {
		t.Errorf("Describe() = %q", got)
	}
	if got := PlayFrame(1, 1, 99, 0, 0).Describe(); got != "PLAY CD1 T1 99:00" {
		t.Errorf("Describe() at 99 minutes = %q", got)
	}
	if got := AnnounceFrame(0x2D).Describe(); got != "INIT" {
		t.Errorf("announce Describe() = %q, want INIT", got)
	}
	if got := IdleFrame(1, 1).Describe(); got != "IDLE" {
		t.Errorf("idle Describe() = %q, want IDLE", got)
	}
}
