package analysis

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/gift"
	"gonum.org/v1/gonum/stat"

	"github.com/openrange-dev/spotter/internal/geom"
	"github.com/openrange-dev/spotter/internal/monitoring"
)

// Outcome classifies the result of comparing two slot means.
type Outcome int

const (
	// OutcomeNoChange means no pixel exceeded the detection threshold.
	OutcomeNoChange Outcome = iota
	// OutcomeValid means a hole-sized, roughly square anomaly was found.
	OutcomeValid
	// OutcomeTooMuchChange means the change area failed the size or
	// aspect validation, typically vibration or lighting, not a hole.
	OutcomeTooMuchChange
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoChange:
		return "no change"
	case OutcomeValid:
		return "valid change"
	case OutcomeTooMuchChange:
		return "too much change"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// DetectParams tunes change detection between slot means.
type DetectParams struct {
	// Threshold is the minimum filtered score for a pixel to count as
	// changed.
	Threshold int
	// MinHoleSize and MaxHoleSize bound the plausible change extent in
	// pixels, both dimensions.
	MinHoleSize int
	MaxHoleSize int
	// MaxSquareErr is the maximum tolerated |w-h|/max(w,h) deviation
	// from a square change area.
	MaxSquareErr float64
	// RetryLimit caps the adaptive re-threshold attempts after a
	// too-much-change result.
	RetryLimit int
	// RetryGrowth multiplies the threshold on each retry.
	RetryGrowth float64
}

// DefaultDetectParams returns the field-proven detection defaults.
func DefaultDetectParams() DetectParams {
	return DetectParams{
		Threshold:    5,
		MinHoleSize:  2,
		MaxHoleSize:  20,
		MaxSquareErr: 0.6,
		RetryLimit:   5,
		RetryGrowth:  1.5,
	}
}

// Detection is the result of one comparison cycle.
type Detection struct {
	Outcome   Outcome
	Rect      geom.Rect // bounding rect of changed pixels, zero for no change
	Threshold int       // threshold that produced the outcome

	// SuggestedMin and SuggestedMax are set when validation only
	// succeeded after adaptive retries: the range of thresholds that
	// would have produced a clean detection in one pass. Guidance for
	// the operator; never applied automatically.
	SuggestedMin int
	SuggestedMax int

	// Peak is the maximum filtered score, ClutterP99 the 99th
	// percentile of the non-zero scores. Both are tuning diagnostics.
	Peak       int
	ClutterP99 float64
}

// An AnomalyScorer turns two slot means into a per-pixel anomaly score
// map. Higher scores mean more hole-like change. The filtering strategy
// is pluggable so the state machine never depends on how clutter is
// suppressed.
type AnomalyScorer interface {
	// Score computes the anomaly score for each pixel of the compared
	// means. Both frames have identical shape; so does the result.
	Score(newMean, oldMean geom.Frame) geom.Frame
	// Name identifies the strategy in diagnostics.
	Name() string
}

// Detect compares two slot means and classifies the change. Scoring runs
// once; the threshold-and-validate step re-runs with a raised threshold
// after a too-much-change result, up to p.RetryLimit attempts.
func Detect(newMean, oldMean geom.Frame, p DetectParams, scorer AnomalyScorer) Detection {
	if !newMean.SameShape(oldMean) {
		panic(fmt.Sprintf("analysis: comparing means of different shape %v vs %v", newMean, oldMean))
	}

	score := scorer.Score(newMean, oldMean)

	peak := 0
	nonzero := make([]float64, 0, 256)
	for _, v := range score.Pix {
		if int(v) > peak {
			peak = int(v)
		}
		if v > 0 {
			nonzero = append(nonzero, float64(v))
		}
	}
	det := Detection{Outcome: OutcomeNoChange, Threshold: p.Threshold, Peak: peak}
	if len(nonzero) > 0 {
		sort.Float64s(nonzero)
		det.ClutterP99 = stat.Quantile(0.99, stat.Empirical, nonzero, nil)
	}

	thresh := p.Threshold
	firstRect := geom.Rect{}
	for attempt := 0; attempt <= p.RetryLimit; attempt++ {
		rect, any := exceedingBounds(score, thresh)
		if !any {
			if attempt == 0 {
				return det // nothing over the base threshold
			}
			// Raising the threshold erased the change entirely; the
			// original result stands as too much change.
			break
		}
		if attempt == 0 {
			firstRect = rect
		}
		if holePlausible(rect, p) {
			det.Outcome = OutcomeValid
			det.Rect = rect
			det.Threshold = thresh
			if attempt > 0 {
				det.SuggestedMin = thresh
				det.SuggestedMax = peak
				monitoring.Logf("[Detect] valid after %d retries; suggested threshold %d..%d", attempt, thresh, peak)
			}
			return det
		}
		next := int(math.Ceil(float64(thresh) * p.RetryGrowth))
		if next <= thresh {
			next = thresh + 1
		}
		thresh = next
	}

	det.Outcome = OutcomeTooMuchChange
	det.Rect = firstRect
	return det
}

// exceedingBounds returns the bounding rect of all pixels scoring above
// thresh and whether any pixel did.
func exceedingBounds(score geom.Frame, thresh int) (geom.Rect, bool) {
	minX, minY := score.W, score.H
	maxX, maxY := -1, -1
	for y := 0; y < score.H; y++ {
		row := score.Pix[y*score.W : (y+1)*score.W]
		for x, v := range row {
			if int(v) > thresh {
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	if maxX < 0 {
		return geom.Rect{}, false
	}
	return geom.NewRect(minX, maxX+1, minY, maxY+1), true
}

// holePlausible validates the changed area against the expected hole
// geometry: bounded size in both dimensions and roughly square.
func holePlausible(r geom.Rect, p DetectParams) bool {
	w, h := r.Width(), r.Height()
	if w < p.MinHoleSize || h < p.MinHoleSize || w > p.MaxHoleSize || h > p.MaxHoleSize {
		return false
	}
	longer := max(w, h)
	return float64(abs(w-h))/float64(longer) <= p.MaxSquareErr
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// CFARScorer is the primary anomaly scorer: a constant-false-alarm-rate
// style filter. The positive part of oldMean-newMean (pixels that got
// darker) is smoothed with a small Gaussian blur, then each pixel has
// the maximum value of an annular neighborhood subtracted. Broad drift
// raises the annulus as much as the pixel and cancels out; a compact
// hole-sized spot keeps its score because the annulus around it stays
// quiet.
type CFARScorer struct {
	// BlurSigma is the Gaussian sigma of the pre-smoothing stage.
	BlurSigma float32
	// GuardRadius is the inner annulus radius in pixels, normally the
	// expected hole radius.
	GuardRadius int
	// RingWidth is the annulus thickness beyond the guard radius.
	RingWidth int

	offsets [][2]int // cached annulus offsets for the current geometry
	guardAt int
	ringAt  int
}

// NewCFARScorer builds the scorer with sane geometry derived from the
// expected maximum hole size.
func NewCFARScorer(maxHoleSize int) *CFARScorer {
	guard := maxHoleSize / 2
	if guard < 2 {
		guard = 2
	}
	return &CFARScorer{BlurSigma: 1.0, GuardRadius: guard, RingWidth: 4}
}

func (c *CFARScorer) Name() string { return "cfar" }

// Score implements AnomalyScorer.
func (c *CFARScorer) Score(newMean, oldMean geom.Frame) geom.Frame {
	diff := geom.NewFrame(newMean.W, newMean.H)
	for i := range diff.Pix {
		if d := oldMean.Pix[i] - newMean.Pix[i]; d > 0 {
			diff.Pix[i] = d
		}
	}

	blurred := blurFrame(diff, c.BlurSigma)

	offsets := c.annulusOffsets()
	out := geom.NewFrame(diff.W, diff.H)
	for y := 0; y < diff.H; y++ {
		for x := 0; x < diff.W; x++ {
			var ring int16
			for _, o := range offsets {
				nx, ny := x+o[0], y+o[1]
				if nx < 0 || nx >= diff.W || ny < 0 || ny >= diff.H {
					continue
				}
				if v := blurred.At(nx, ny); v > ring {
					ring = v
				}
			}
			if v := blurred.At(x, y) - ring; v > 0 {
				out.Set(x, y, v)
			}
		}
	}
	return out
}

// annulusOffsets returns the relative coordinates of the annulus between
// GuardRadius (exclusive) and GuardRadius+RingWidth (inclusive). The
// ring is subsampled every other pixel; a maximum over half the ring is
// as good a clutter estimate at half the cost.
func (c *CFARScorer) annulusOffsets() [][2]int {
	if c.offsets != nil && c.guardAt == c.GuardRadius && c.ringAt == c.RingWidth {
		return c.offsets
	}
	inner, outer := c.GuardRadius, c.GuardRadius+c.RingWidth
	var offs [][2]int
	for dy := -outer; dy <= outer; dy++ {
		for dx := -outer; dx <= outer; dx++ {
			if (dx+dy)%2 != 0 {
				continue
			}
			d2 := dx*dx + dy*dy
			if d2 > inner*inner && d2 <= outer*outer {
				offs = append(offs, [2]int{dx, dy})
			}
		}
	}
	c.offsets = offs
	c.guardAt, c.ringAt = c.GuardRadius, c.RingWidth
	return offs
}

// blurFrame applies a Gaussian blur to the (non-negative) frame values.
func blurFrame(f geom.Frame, sigma float32) geom.Frame {
	if sigma <= 0 {
		return f
	}
	g := gift.New(gift.GaussianBlur(sigma))
	src := f.ToGray()
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return geom.FromGray(dst)
}

// BlockMatchScorer compensates rigid frame-to-frame shift before
// scoring. It searches integer translations of the old mean within
// ±MaxShift for the one minimising the sum of absolute differences, then
// hands the aligned means to the inner scorer. Kept as an alternative
// strategy for vibration-heavy setups; the CFAR scorer is the default.
type BlockMatchScorer struct {
	MaxShift int
	Inner    AnomalyScorer
}

func (b *BlockMatchScorer) Name() string { return "blockmatch+" + b.Inner.Name() }

// Score implements AnomalyScorer.
func (b *BlockMatchScorer) Score(newMean, oldMean geom.Frame) geom.Frame {
	dx, dy := bestShift(newMean, oldMean, b.MaxShift)
	if dx != 0 || dy != 0 {
		monitoring.Logf("[BlockMatch] compensating shift dx=%d dy=%d", dx, dy)
	}
	return b.Inner.Score(newMean, shiftFrame(oldMean, dx, dy))
}

// bestShift returns the translation of old that best aligns it with new,
// by exhaustive SAD search over the central region.
func bestShift(newF, oldF geom.Frame, maxShift int) (int, int) {
	bestDx, bestDy := 0, 0
	bestSAD := int64(math.MaxInt64)
	for dy := -maxShift; dy <= maxShift; dy++ {
		for dx := -maxShift; dx <= maxShift; dx++ {
			var sad int64
			for y := maxShift; y < newF.H-maxShift; y += 2 {
				for x := maxShift; x < newF.W-maxShift; x += 2 {
					d := int64(newF.At(x, y)) - int64(oldF.At(x+dx, y+dy))
					if d < 0 {
						d = -d
					}
					sad += d
				}
			}
			if sad < bestSAD {
				bestSAD, bestDx, bestDy = sad, dx, dy
			}
		}
	}
	return bestDx, bestDy
}

// shiftFrame translates a frame by (dx, dy), filling uncovered pixels
// with the nearest edge value.
func shiftFrame(f geom.Frame, dx, dy int) geom.Frame {
	if dx == 0 && dy == 0 {
		return f
	}
	out := geom.NewFrame(f.W, f.H)
	for y := 0; y < f.H; y++ {
		sy := min(max(y+dy, 0), f.H-1)
		for x := 0; x < f.W; x++ {
			sx := min(max(x+dx, 0), f.W-1)
			out.Set(x, y, f.At(sx, sy))
		}
	}
	return out
}
