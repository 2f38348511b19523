package capture

import (
	"context"
	"fmt"
	"image"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/disintegration/gift"

	"github.com/openrange-dev/spotter/internal/geom"
)

// Emulator generates a synthetic view of a paper target with a dark
// mirror disk: vignetted background, bright paper square, smoothed
// coarse noise plus fine per-pixel noise, and any number of injected
// bullet holes. It stands in for the camera during development and in
// tests.
type Emulator struct {
	mu          sync.Mutex
	width       int
	height      int
	fps         float64
	mirrorRatio float64 // mirror radius as a fraction of image width
	contrast    float64 // normalized 0..2, 1 is neutral
	noiseCoarse float64
	noiseFine   float64
	rng         *rand.Rand
	holes       []hole

	base geom.Frame // noiseless scene, rebuilt when holes change
}

type hole struct {
	x, y, r int
}

// NewEmulator builds an emulator with the default 1280x720 scene at
// 15 fps.
func NewEmulator(seed int64) *Emulator {
	e := &Emulator{
		width:       1280,
		height:      720,
		fps:         15,
		mirrorRatio: 0.1,
		contrast:    1.0,
		noiseCoarse: 0.03,
		noiseFine:   0.02,
		rng:         rand.New(rand.NewSource(seed)),
	}
	return e
}

// SetResolution overrides the scene size. Must be called before Run.
func (e *Emulator) SetResolution(w, h int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.width, e.height = w, h
	e.base = geom.Frame{}
}

// SetFPS overrides the frame rate. Must be called before Run.
func (e *Emulator) SetFPS(fps float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fps = fps
}

// SetNoise adjusts the coarse and fine noise scales; zero disables noise
// entirely, which tests rely on for determinism.
func (e *Emulator) SetNoise(coarse, fine float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.noiseCoarse, e.noiseFine = coarse, fine
}

// AddHole punches a dark hole of radius r pixels at (x, y) into the
// scene, visible from the next generated frame on.
func (e *Emulator) AddHole(x, y, r int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.holes = append(e.holes, hole{x: x, y: y, r: r})
	e.base = geom.Frame{}
}

// ClearHoles removes all injected holes.
func (e *Emulator) ClearHoles() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.holes = nil
	e.base = geom.Frame{}
}

// Params implements Source.
func (e *Emulator) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Params{
		Width:        e.width,
		Height:       e.height,
		ExposureTime: time.Duration(float64(time.Second) / e.fps),
		Contrast:     int(100 * (e.contrast - 1.0)),
		FPS:          e.fps,
	}
}

// SetContrast implements Source. The value maps -100..100 onto a 0..2
// multiplier, matching the camera convention.
func (e *Emulator) SetContrast(v int) error {
	if v < -100 || v > 100 {
		return fmt.Errorf("contrast %d out of range -100..100", v)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.contrast = float64(v)/100.0 + 1.0
	return nil
}

// Run implements Source.
func (e *Emulator) Run(ctx context.Context, h Handler) error {
	e.mu.Lock()
	fps := e.fps
	e.mu.Unlock()
	return runPaced(ctx, fps, e.Frame, h)
}

// Frame generates the next synthetic frame.
func (e *Emulator) Frame() geom.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.base.Pix == nil {
		e.base = e.renderScene()
	}

	f := geom.NewFrame(e.width, e.height)
	copy(f.Pix, e.base.Pix)

	if e.noiseCoarse > 0 {
		coarse := e.noiseField(e.noiseCoarse)
		coarse = e.blurPlane(coarse, 5)
		for i := range f.Pix {
			f.Pix[i] += coarse[i]
		}
	}
	if e.noiseFine > 0 {
		for i := range f.Pix {
			f.Pix[i] += int16(e.rng.NormFloat64() * e.noiseFine * 255)
		}
	}
	if e.contrast != 1.0 {
		for i := range f.Pix {
			f.Pix[i] = int16(float64(f.Pix[i]) * e.contrast)
		}
	}
	for i, v := range f.Pix {
		if v < 0 {
			f.Pix[i] = 0
		} else if v > 255 {
			f.Pix[i] = 255
		}
	}
	return f
}

// renderScene draws the noiseless target scene: vignette, paper square,
// mirror disk and holes, then a gentle blur to soften the edges.
func (e *Emulator) renderScene() geom.Frame {
	w, h := e.width, e.height
	f := geom.NewFrame(w, h)
	aspect := float64(h) / float64(w)
	paperHalf := 3 * e.mirrorRatio

	for yi := 0; yi < h; yi++ {
		ny := (2*float64(yi)/float64(h-1) - 1) * aspect
		for xi := 0; xi < w; xi++ {
			nx := 2*float64(xi)/float64(w-1) - 1
			d := math.Sqrt(nx*nx + ny*ny)
			v := 0.4 - 0.4*d*d // background with vignette
			if math.Abs(nx) < paperHalf && math.Abs(ny) < paperHalf {
				v = 0.8
			}
			if d <= e.mirrorRatio {
				v = 0.2
			}
			f.Set(xi, yi, int16(v*255))
		}
	}

	for _, hl := range e.holes {
		for yy := hl.y - hl.r; yy <= hl.y+hl.r; yy++ {
			for xx := hl.x - hl.r; xx <= hl.x+hl.r; xx++ {
				if xx < 0 || xx >= w || yy < 0 || yy >= h {
					continue
				}
				dx, dy := xx-hl.x, yy-hl.y
				if dx*dx+dy*dy <= hl.r*hl.r {
					f.Set(xx, yy, 26) // through-hole shows the dark backstop
				}
			}
		}
	}

	blurred := e.blurPlane(f.Pix, 3)
	copy(f.Pix, blurred)
	return f
}

// noiseField returns an unblurred gaussian noise field scaled to
// luminance units.
func (e *Emulator) noiseField(scale float64) []int16 {
	out := make([]int16, e.width*e.height)
	for i := range out {
		out[i] = int16(e.rng.NormFloat64() * scale * 255)
	}
	return out
}

// blurPlane low-pass filters a sample plane with a Gaussian of the given
// sigma. Signed planes (noise) are shifted into the middle of the 8-bit
// range before filtering so negative samples survive the image round
// trip; the small noise scales never reach the ±127 clip.
func (e *Emulator) blurPlane(pix []int16, sigma float32) []int16 {
	offset := int32(0)
	for _, v := range pix {
		if v < 0 {
			offset = 128
			break
		}
	}
	src := image.NewGray(image.Rect(0, 0, e.width, e.height))
	for i, v := range pix {
		s := int32(v) + offset
		if s < 0 {
			s = 0
		} else if s > 255 {
			s = 255
		}
		src.Pix[i] = uint8(s)
	}
	g := gift.New(gift.GaussianBlur(sigma))
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	out := make([]int16, len(pix))
	for i := range out {
		out[i] = int16(int32(dst.Pix[i]) - offset)
	}
	return out
}
