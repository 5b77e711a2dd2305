// Package sink holds frame consumers for a capture session.
package sink

import (
	"image"

	"github.com/breeze-rmm/scrap/internal/session"
)

// nativeSize is the pixel size of the frame as stored, before any display
// rotation is applied.
func nativeSize(f *session.Frame) (w, h int) {
	w = f.Display.Width
	if f.Display.Rotation.Swapped() {
		w = f.Display.Height
	}
	if limit := f.Stride / 4; w > limit || w <= 0 {
		w = limit
	}
	return w, f.Rows
}

// ToRGBA converts a BGRA frame into a tightly packed RGBA image in the
// surface's native orientation. Alpha is forced opaque.
func ToRGBA(f *session.Frame) *image.RGBA {
	w, h := nativeSize(f)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := f.Pix[y*f.Stride : y*f.Stride+w*4]
		dst := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < len(src); x += 4 {
			dst[x+0] = src[x+2]
			dst[x+1] = src[x+1]
			dst[x+2] = src[x+0]
			dst[x+3] = 0xFF
		}
	}
	return img
}
