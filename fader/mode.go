package fader

import "fmt"

// Mode describes how a color request is expected to be followed up.
type Mode uint8

const (
	// Static is a single deliberate color choice. It favors a high PWM
	// frequency and accepts every request.
	Static Mode = iota
	// Continuous is a recurring feed of small updates, e.g. screen sampling.
	// It favors a low PWM frequency and ignores jitter below a threshold.
	Continuous
)

// ParseMode parses the wire name of a mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "static":
		return Static, nil
	case "continuous":
		return Continuous, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

func (m Mode) String() string {
	switch m {
	case Static:
		return "static"
	case Continuous:
		return "continuous"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}
