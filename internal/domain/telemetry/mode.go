package telemetry

import (
	"fmt"
	"strings"
)

// Mode is the shooting context that selects which fields and rules apply.
type Mode string

const (
	ModeLandscape Mode = "LANDSCAPE"
	ModePortrait  Mode = "PORTRAIT"
	ModeAction    Mode = "ACTION"
)

// Modes lists every supported mode in display order.
var Modes = []Mode{ModeLandscape, ModePortrait, ModeAction}

// ParseMode accepts canonical names in any case and the Swedish labels used
// by the first mobile client.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LANDSCAPE", "LANDSKAP":
		return ModeLandscape, nil
	case "PORTRAIT", "PORTRÄTT", "PORTRATT":
		return ModePortrait, nil
	case "ACTION":
		return ModeAction, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Valid reports whether m is one of the canonical modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeLandscape, ModePortrait, ModeAction:
		return true
	}
	return false
}

func (m Mode) String() string { return string(m) }

// UnmarshalText normalises aliases while decoding.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
