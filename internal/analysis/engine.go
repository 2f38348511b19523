package analysis

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/openrange-dev/spotter/internal/geom"
	"github.com/openrange-dev/spotter/internal/monitoring"
	"github.com/openrange-dev/spotter/internal/target"
)

// State is the engine's processing state.
type State int

const (
	// StatePreview shows the live view; no detection state is touched.
	StatePreview State = iota
	// StateStart runs the one-shot calibration on the next frame.
	StateStart
	// StateCollect fills the averaging window after calibration.
	StateCollect
	// StateDetect is the steady-state comparison mode.
	StateDetect
)

func (s State) String() string {
	switch s {
	case StatePreview:
		return "preview"
	case StateStart:
		return "start"
	case StateCollect:
		return "collect"
	case StateDetect:
		return "detect"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// pendingPoint is a detection waiting for its confirmation window.
type pendingPoint struct {
	x, y int
	at   time.Time
}

// Engine drives the frame analysis pipeline. Exactly one producer calls
// Analyse sequentially at the capture rate; any number of readers take
// snapshots of the result surface or wait for the next stream image.
// All mutable state is guarded by mu; Analyse never touches the network
// or disk.
type Engine struct {
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool

	settings Settings
	tgt      *target.Target
	scorer   AnomalyScorer
	encode   EncodeFunc

	state      State
	frameCount uint64
	procTime   time.Duration

	calibrated     bool
	mirrorFallback bool
	pickBounds     geom.Rect // raw flood-fill result, frame coordinates
	cropBounds     geom.Rect // paper crop, frame coordinates
	mirrorBounds   geom.Rect // mirror, crop coordinates

	slot          *Slot
	slotTarget    int // SlotFrames latched at slot start
	history       *slotHistory
	lastDetection *Detection
	pending       []pendingPoint
	marks         *MarkList

	wantPreview bool
	wantStart   bool

	streamImage  []byte
	imageVersion uint64
}

// NewEngine builds an engine in PREVIEW state with the given target and
// settings. A nil encode falls back to JPEG at quality 80.
func NewEngine(tgt *target.Target, settings Settings, encode EncodeFunc) *Engine {
	if encode == nil {
		encode = JPEGEncoder(80)
	}
	e := &Engine{
		settings: settings,
		tgt:      tgt,
		scorer:   NewCFARScorer(settings.MaxHoleSize),
		encode:   encode,
		state:    StatePreview,
		slot:     NewSlot(),
		history:  newSlotHistory(settings.HistorySlots),
		marks:    NewMarkList(settings.MaxMarks, settings.MarkTolerance),
	}
	e.slotTarget = settings.SlotFrames
	e.cond = sync.NewCond(&e.mu)
	return e
}

// SetScorer swaps the anomaly scoring strategy. Takes effect on the next
// comparison cycle.
func (e *Engine) SetScorer(s AnomalyScorer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s != nil {
		e.scorer = s
	}
}

// Analyse processes one captured frame. It is the single-writer entry
// point and must be called from one goroutine only.
func (e *Engine) Analyse(f geom.Frame) {
	started := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.frameCount++
	if e.wantPreview {
		e.wantPreview = false
		e.enterPreviewLocked()
	}
	if e.wantStart {
		e.wantStart = false
		e.state = StateStart
	}

	switch e.state {
	case StatePreview:
		e.analysePreviewLocked(f)
	case StateStart:
		e.analyseStartLocked(f)
	case StateCollect, StateDetect:
		e.analyseDetectLocked(f)
	}

	e.procTime = time.Since(started)
}

// enterPreviewLocked discards in-flight accumulation and detection
// state. Confirmed marks and calibration survive; only a new START
// recalibrates.
func (e *Engine) enterPreviewLocked() {
	e.state = StatePreview
	e.resetCycleLocked()
}

func (e *Engine) resetCycleLocked() {
	e.slot = NewSlot()
	e.slotTarget = e.settings.SlotFrames
	e.history = newSlotHistory(e.settings.HistorySlots)
	e.pending = nil
	e.lastDetection = nil
}

func (e *Engine) analysePreviewLocked(f geom.Frame) {
	side := min(f.W, f.H)
	cx, cy := f.W/2, f.H/2
	crop := f.Crop(geom.CenteredSquare(cx, cy, side))
	e.publishLocked(scaleToSquare(crop, e.settings.DisplaySize))
}

func (e *Engine) analyseStartLocked(f geom.Frame) {
	if !(e.settings.KeepCalibration && e.calibrated) {
		pick, fallback := LocateMirror(f, e.settings.Locate)
		e.pickBounds = pick
		e.mirrorFallback = fallback
		e.cropBounds = pick.Scaled(e.settings.PaperScale).Clamped(f.Bounds())
		e.mirrorBounds = pick.RelativeTo(e.cropBounds)
		e.calibrated = true
		monitoring.Logf("[Engine] calibrated: pick=%v crop=%v mirror=%v fallback=%v",
			e.pickBounds, e.cropBounds, e.mirrorBounds, fallback)
	} else {
		monitoring.Logf("[Engine] keeping previous calibration crop=%v", e.cropBounds)
	}
	e.resetCycleLocked()
	e.state = StateCollect
}

func (e *Engine) analyseDetectLocked(f geom.Frame) {
	crop := f.Crop(e.cropBounds)
	e.slot.Add(crop)

	if e.slot.Len() < e.slotTarget {
		if e.history.Newest() == nil {
			// Window still warming up; stream the live crop.
			e.publishLocked(crop.ToGray())
		}
		return
	}

	cycled := e.history.Push(e.slot)
	e.slot = NewSlot()
	// Tunable changes apply here, at the cycle boundary, so a
	// mid-accumulation write can never corrupt a slot.
	e.slotTarget = e.settings.SlotFrames

	if e.history.Full() && e.state == StateCollect {
		monitoring.Logf("[Engine] averaging window full; entering detect state")
		e.state = StateDetect
	}

	if !cycled {
		e.publishLocked(e.history.Newest().Mean().ToGray())
		return
	}

	newMean := e.history.Newest().Mean()
	oldMean := e.history.Oldest().Mean()
	det := Detect(newMean, oldMean, e.settings.detectParams(), e.scorer)
	e.lastDetection = &det

	switch det.Outcome {
	case OutcomeValid:
		x, y := det.Rect.Center()
		e.pending = append(e.pending, pendingPoint{x: x, y: y, at: time.Now()})
		monitoring.Logf("[Engine] valid change at (%d,%d), %d pending", x, y, len(e.pending))
	default:
		if len(e.pending) > 0 {
			p := e.pending[0]
			e.pending = e.pending[1:]
			ring := e.tgt.ScoreRing(p.x, p.y, e.correctedMirrorLocked())
			if m, ok := e.marks.Add(p.x, p.y, ring); ok {
				monitoring.Logf("[Engine] confirmed mark %s at (%d,%d) ring %d", m.ID, m.X, m.Y, m.Ring)
			} else {
				monitoring.Logf("[Engine] dropped duplicate detection at (%d,%d)", p.x, p.y)
			}
		}
	}

	if e.settings.DisplayMode == DisplayDiff {
		e.publishLocked(amplifyDiff(newMean, oldMean, 8).ToGray())
	} else {
		e.publishLocked(newMean.ToGray())
	}
}

func (e *Engine) correctedMirrorLocked() geom.Rect {
	return e.mirrorBounds.Scaled(e.settings.CorrScale).Moved(e.settings.CorrDX, e.settings.CorrDY)
}

// publishLocked encodes and atomically publishes the display image,
// waking any readers blocked on the next frame. An encode failure skips
// this frame's publish and keeps the previous image.
func (e *Engine) publishLocked(img image.Image) {
	b, err := e.encode(img)
	if err != nil {
		monitoring.Logf("[Engine] display encode failed, keeping previous image: %v", err)
		return
	}
	e.streamImage = b
	e.imageVersion++
	e.cond.Broadcast()
}

// Image returns the current encoded display image and its version. The
// returned bytes must not be modified.
func (e *Engine) Image() ([]byte, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streamImage, e.imageVersion
}

// WaitImage blocks until an image newer than prev is published or the
// engine is closed. The final return is false once the engine is closed.
func (e *Engine) WaitImage(prev uint64) ([]byte, uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.imageVersion <= prev && !e.closed {
		e.cond.Wait()
	}
	if e.closed {
		return nil, e.imageVersion, false
	}
	return e.streamImage, e.imageVersion, true
}

// Close wakes all blocked readers. The engine must not be fed further
// frames afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.cond.Broadcast()
}

// DetectionView is the externally visible summary of the last
// comparison cycle.
type DetectionView struct {
	Outcome      string     `json:"outcome"`
	Rect         *geom.Rect `json:"rect,omitempty"`
	Threshold    int        `json:"threshold"`
	SuggestedMin int        `json:"suggested_min,omitempty"`
	SuggestedMax int        `json:"suggested_max,omitempty"`
	Peak         int        `json:"peak"`
	ClutterP99   float64    `json:"clutter_p99"`
}

// Status is a consistent snapshot of the engine's result surface.
type Status struct {
	State          string            `json:"state"`
	FrameCount     uint64            `json:"frame_count"`
	ProcTimeMillis float64           `json:"proc_time_ms"`
	SlotFill       int               `json:"slot_fill"`
	SlotTarget     int               `json:"slot_target"`
	HistoryFill    int               `json:"history_fill"`
	HistorySlots   int               `json:"history_slots"`
	Calibrated     bool              `json:"calibrated"`
	MirrorFallback bool              `json:"mirror_fallback"`
	PickBounds     geom.Rect         `json:"pick_bounds"`
	CropBounds     geom.Rect         `json:"crop_bounds"`
	MirrorBounds   geom.Rect         `json:"mirror_bounds"`
	Corrected      geom.Rect         `json:"corrected_mirror"`
	RingBounds     map[int]geom.Rect `json:"ring_bounds,omitempty"`
	LastDetection  *DetectionView    `json:"last_detection,omitempty"`
	Marks          []Mark            `json:"marks"`
	TargetName     string            `json:"target"`
	PendingCount   int               `json:"pending_count"`
}

// Status returns a snapshot of the result surface. Safe to call from any
// goroutine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		State:          e.state.String(),
		FrameCount:     e.frameCount,
		ProcTimeMillis: float64(e.procTime.Nanoseconds()) / 1e6,
		SlotFill:       e.slot.Len(),
		SlotTarget:     e.slotTarget,
		HistoryFill:    len(e.history.slots),
		HistorySlots:   e.history.capacity,
		Calibrated:     e.calibrated,
		MirrorFallback: e.mirrorFallback,
		PickBounds:     e.pickBounds,
		CropBounds:     e.cropBounds,
		MirrorBounds:   e.mirrorBounds,
		Marks:          e.marks.All(),
		TargetName:     e.tgt.Name,
		PendingCount:   len(e.pending),
	}
	if e.calibrated {
		st.Corrected = e.correctedMirrorLocked()
		st.RingBounds = e.tgt.RingBounds(st.Corrected)
	}
	if d := e.lastDetection; d != nil {
		v := DetectionView{
			Outcome:      d.Outcome.String(),
			Threshold:    d.Threshold,
			SuggestedMin: d.SuggestedMin,
			SuggestedMax: d.SuggestedMax,
			Peak:         d.Peak,
			ClutterP99:   d.ClutterP99,
		}
		if d.Outcome != OutcomeNoChange {
			r := d.Rect
			v.Rect = &r
		}
		st.LastDetection = &v
	}
	return st
}

// Settings returns a copy of the current tunables.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// Command switches the engine mode: "start" enters calibration on the
// next frame, "preview" returns to the live view and discards in-flight
// accumulation.
func (e *Engine) Command(mode string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch mode {
	case "start":
		e.wantStart = true
	case "preview":
		e.wantPreview = true
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	return nil
}

// SetThreshold updates the detection threshold. Invalid values are
// rejected and the prior value retained.
func (e *Engine) SetThreshold(v int) error {
	if v < 1 || v > 255 {
		return fmt.Errorf("threshold %d out of range 1..255", v)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings.Threshold = v
	return nil
}

// SetSlotFrames updates the averaging window size. Takes effect at the
// next cycle boundary.
func (e *Engine) SetSlotFrames(v int) error {
	if v < 1 || v > 100 {
		return fmt.Errorf("slot frames %d out of range 1..100", v)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings.SlotFrames = v
	return nil
}

// SetKeepCalibration toggles calibration reuse across START commands.
func (e *Engine) SetKeepCalibration(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings.KeepCalibration = v
}

// SetDisplayMode switches between raw and amplified-difference display.
func (e *Engine) SetDisplayMode(mode string) error {
	m, err := ParseDisplayMode(mode)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings.DisplayMode = m
	return nil
}

// SetCorrection adjusts the operator scale and translate correction
// applied to the detected mirror rect.
func (e *Engine) SetCorrection(scale float64, dx, dy int) error {
	if scale < 0.2 || scale > 5.0 {
		return fmt.Errorf("correction scale %v out of range 0.2..5.0", scale)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings.CorrScale = scale
	e.settings.CorrDX = dx
	e.settings.CorrDY = dy
	return nil
}

// SetTarget switches the active target. Existing marks keep their ring
// values; new detections score against the new target.
func (e *Engine) SetTarget(t *target.Target) error {
	if t == nil {
		return fmt.Errorf("nil target")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tgt = t
	return nil
}

// SetHoleDiameter updates the expected hole diameter in millimetres on
// the active target.
func (e *Engine) SetHoleDiameter(mm float64) error {
	if mm <= 0 || mm > 30 {
		return fmt.Errorf("hole diameter %vmm out of range", mm)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	t := *e.tgt
	t.HoleDiameter = mm
	e.tgt = &t
	return nil
}

// DeleteMark removes a confirmed mark by ID.
func (e *Engine) DeleteMark(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.marks.Delete(id)
}

// MoveMark repositions a confirmed mark and re-scores its ring.
func (e *Engine) MoveMark(id string, x, y int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ring := e.tgt.ScoreRing(x, y, e.correctedMirrorLocked())
	return e.marks.Move(id, x, y, ring)
}

// DuplicateMark copies a confirmed mark in place, for when a shot goes
// through an existing hole.
func (e *Engine) DuplicateMark(id string) (Mark, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.marks.Duplicate(id)
}

// ClearMarks discards all confirmed marks.
func (e *Engine) ClearMarks() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.marks.Reset()
}
