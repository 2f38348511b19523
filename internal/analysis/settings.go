package analysis

import "fmt"

// DisplayMode selects what the published stream image shows.
type DisplayMode int

const (
	// DisplayRaw streams the averaged crop as seen by the camera.
	DisplayRaw DisplayMode = iota
	// DisplayDiff streams the amplified difference between the compared
	// slot means, useful when tuning the detection threshold.
	DisplayDiff
)

func (m DisplayMode) String() string {
	if m == DisplayDiff {
		return "diff"
	}
	return "raw"
}

// ParseDisplayMode converts the wire form of a display mode.
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch s {
	case "raw":
		return DisplayRaw, nil
	case "diff":
		return DisplayDiff, nil
	default:
		return DisplayRaw, fmt.Errorf("unknown display mode %q", s)
	}
}

// Settings are the operator-adjustable tunables of the engine. They are
// owned by the engine instance (no package globals) so multiple engines
// can coexist. Writers may be any reader thread; the engine reads a
// consistent copy under its lock and applies slot-related changes only
// at cycle boundaries.
type Settings struct {
	// Threshold is the persistent detection threshold.
	Threshold int
	// SlotFrames is the number of frames averaged per slot.
	SlotFrames int
	// HistorySlots is the comparison window capacity.
	HistorySlots int
	// PaperScale expands the mirror rect to the paper crop.
	PaperScale float64
	// MinHoleSize, MaxHoleSize and MaxSquareErr validate the change
	// area, see DetectParams.
	MinHoleSize  int
	MaxHoleSize  int
	MaxSquareErr float64
	// RetryLimit and RetryGrowth drive the adaptive re-threshold loop.
	RetryLimit  int
	RetryGrowth float64
	// MarkTolerance is the deduplication distance in pixels.
	MarkTolerance int
	// MaxMarks bounds the confirmed-mark list.
	MaxMarks int
	// KeepCalibration skips mirror relocation on recalibration when a
	// prior calibration exists.
	KeepCalibration bool
	// DisplayMode selects raw or amplified-difference streaming.
	DisplayMode DisplayMode
	// CorrScale, CorrDX and CorrDY are the operator calibration
	// correction applied on top of the detected mirror rect for display
	// and scoring.
	CorrScale float64
	CorrDX    int
	CorrDY    int
	// Locate tunes the one-shot mirror search.
	Locate LocateParams
	// DisplaySize is the side length of the preview display square.
	DisplaySize int
}

// DefaultSettings returns the field-proven defaults.
func DefaultSettings() Settings {
	d := DefaultDetectParams()
	return Settings{
		Threshold:       d.Threshold,
		SlotFrames:      5,
		HistorySlots:    3,
		PaperScale:      3.0,
		MinHoleSize:     d.MinHoleSize,
		MaxHoleSize:     d.MaxHoleSize,
		MaxSquareErr:    d.MaxSquareErr,
		RetryLimit:      d.RetryLimit,
		RetryGrowth:     d.RetryGrowth,
		MarkTolerance:   5,
		MaxMarks:        50,
		KeepCalibration: false,
		DisplayMode:     DisplayRaw,
		CorrScale:       1.0,
		Locate:          DefaultLocateParams(),
		DisplaySize:     480,
	}
}

// detectParams derives the detector parameters from the settings.
func (s Settings) detectParams() DetectParams {
	return DetectParams{
		Threshold:    s.Threshold,
		MinHoleSize:  s.MinHoleSize,
		MaxHoleSize:  s.MaxHoleSize,
		MaxSquareErr: s.MaxSquareErr,
		RetryLimit:   s.RetryLimit,
		RetryGrowth:  s.RetryGrowth,
	}
}
