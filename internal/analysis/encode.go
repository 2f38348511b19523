package analysis

import (
	"bytes"
	"image"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"

	"github.com/openrange-dev/spotter/internal/geom"
)

// EncodeFunc turns a display image into streamable bytes. The engine
// treats encoding as an opaque capability; a failed encode skips that
// frame's publish and keeps the previous image.
type EncodeFunc func(image.Image) ([]byte, error)

// JPEGEncoder returns an EncodeFunc producing JPEG bytes at the given
// quality (1..100).
func JPEGEncoder(quality int) EncodeFunc {
	return func(img image.Image) ([]byte, error) {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// scaleToSquare resizes the frame's gray image to a side x side square.
func scaleToSquare(f geom.Frame, side int) image.Image {
	src := f.ToGray()
	dst := image.NewGray(image.Rect(0, 0, side, side))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// amplifyDiff builds the amplified-difference display: the positive part
// of oldMean-newMean scaled by gain and clipped to the display range.
func amplifyDiff(newMean, oldMean geom.Frame, gain int16) geom.Frame {
	out := geom.NewFrame(newMean.W, newMean.H)
	for i := range out.Pix {
		d := oldMean.Pix[i] - newMean.Pix[i]
		if d <= 0 {
			continue
		}
		v := int32(d) * int32(gain)
		if v > 255 {
			v = 255
		}
		out.Pix[i] = int16(v)
	}
	return out
}
