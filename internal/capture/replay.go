package capture

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openrange-dev/spotter/internal/geom"
	"github.com/openrange-dev/spotter/internal/monitoring"
)

// Replay replays a directory of recorded frames (PNG or JPEG, sorted by
// name) in a loop at a fixed rate, for offline tuning against real
// sessions.
type Replay struct {
	mu     sync.Mutex
	frames []geom.Frame
	fps    float64
	next   int
}

// NewReplay loads all decodable images from dir. All frames must share
// the dimensions of the first.
func NewReplay(dir string, fps float64) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no frames found in %s", dir)
	}

	r := &Replay{fps: fps}
	for _, name := range names {
		f, err := loadFrame(filepath.Join(dir, name))
		if err != nil {
			monitoring.Logf("[Replay] skipping %s: %v", name, err)
			continue
		}
		if len(r.frames) > 0 && !f.SameShape(r.frames[0]) {
			return nil, fmt.Errorf("frame %s is %v, want %v", name, f, r.frames[0])
		}
		r.frames = append(r.frames, f)
	}
	if len(r.frames) == 0 {
		return nil, fmt.Errorf("no decodable frames in %s", dir)
	}
	monitoring.Logf("[Replay] loaded %d frames from %s", len(r.frames), dir)
	return r, nil
}

func loadFrame(path string) (geom.Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return geom.Frame{}, err
	}
	defer fh.Close()
	img, _, err := image.Decode(fh)
	if err != nil {
		return geom.Frame{}, err
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		gray = image.NewGray(img.Bounds())
		draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	}
	return geom.FromGray(gray), nil
}

// Params implements Source.
func (r *Replay) Params() Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Params{
		Width:        r.frames[0].W,
		Height:       r.frames[0].H,
		ExposureTime: time.Duration(float64(time.Second) / r.fps),
		FPS:          r.fps,
	}
}

// SetContrast implements Source; replayed frames have baked-in contrast.
func (r *Replay) SetContrast(int) error {
	return fmt.Errorf("contrast is fixed for replayed frames")
}

// Run implements Source, looping over the loaded frames.
func (r *Replay) Run(ctx context.Context, h Handler) error {
	return runPaced(ctx, r.fps, func() geom.Frame {
		r.mu.Lock()
		defer r.mu.Unlock()
		f := r.frames[r.next]
		r.next = (r.next + 1) % len(r.frames)
		return f
	}, h)
}
