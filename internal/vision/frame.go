// Package vision holds the grayscale frame representation, template
// matching and the pixel/logical coordinate mapping. It is fully
// platform-agnostic: frames come in from a platform driver, click points
// go out to one, and everything in between is plain math over byte
// buffers.
package vision

import (
	"fmt"
	"image"
	"math"
)

// Frame is a grayscale pixel buffer captured from a window, together with
// the capture scale that was measured for that same capture. Scale is the
// ratio of captured buffer width to the window's logical width: 1 on
// standard-DPI displays, 2 (or a fractional factor) on high-DPI ones.
//
// The scale travels with the buffer on purpose. A match location in this
// buffer may only ever be converted to logical coordinates using this
// frame's scale, never a cached or global one.
type Frame struct {
	Pix    []uint8
	Width  int
	Height int
	Scale  float64
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height int, scale float64) *Frame {
	return &Frame{
		Pix:    make([]uint8, width*height),
		Width:  width,
		Height: height,
		Scale:  scale,
	}
}

// FrameFromImage converts any image to a grayscale frame using BT.601
// luma weights.
func FrameFromImage(img image.Image, scale float64) *Frame {
	bounds := img.Bounds()
	f := NewFrame(bounds.Dx(), bounds.Dy(), scale)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// 16-bit channels; weights sum to 1.
			luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			f.Pix[i] = clampByte(math.Round(luma / 257.0))
			i++
		}
	}
	return f
}

// FrameFromBGRA converts a raw 32-bit BGRA buffer (the layout native
// capture paths produce) to a grayscale frame. stride is in bytes.
func FrameFromBGRA(pix []byte, width, height, stride int, scale float64) (*Frame, error) {
	if stride < width*4 || len(pix) < stride*height {
		return nil, fmt.Errorf("bgra buffer too small: %d bytes for %dx%d stride %d", len(pix), width, height, stride)
	}
	f := NewFrame(width, height, scale)
	for y := 0; y < height; y++ {
		row := pix[y*stride:]
		for x := 0; x < width; x++ {
			b := float64(row[x*4])
			g := float64(row[x*4+1])
			r := float64(row[x*4+2])
			f.Pix[y*width+x] = clampByte(math.Round(0.299*r + 0.587*g + 0.114*b))
		}
	}
	return f, nil
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// At returns the pixel value at (x, y). Out-of-range access panics like a
// slice access would; callers index within Bounds.
func (f *Frame) At(x, y int) uint8 {
	return f.Pix[y*f.Width+x]
}

// Bounds returns the frame rectangle in captured-pixel coordinates.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// SubFrame copies the region r out of the frame. The copy keeps the
// parent's capture scale. r must lie within Bounds.
func (f *Frame) SubFrame(r image.Rectangle) (*Frame, error) {
	if !r.In(f.Bounds()) {
		return nil, fmt.Errorf("region %v outside frame %v", r, f.Bounds())
	}
	sub := NewFrame(r.Dx(), r.Dy(), f.Scale)
	for y := 0; y < r.Dy(); y++ {
		src := (r.Min.Y+y)*f.Width + r.Min.X
		copy(sub.Pix[y*sub.Width:(y+1)*sub.Width], f.Pix[src:src+r.Dx()])
	}
	return sub, nil
}

// ToGray converts the frame back to a stdlib image, used when templates
// are written out as PNG.
func (f *Frame) ToGray() *image.Gray {
	img := image.NewGray(f.Bounds())
	// image.Gray stride equals width for a fresh image, but copy row by
	// row anyway.
	for y := 0; y < f.Height; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+f.Width], f.Pix[y*f.Width:(y+1)*f.Width])
	}
	return img
}

// Resize scales the frame by the given factor using nearest-neighbour
// sampling. Used to bring a template captured at one DPI scale to the
// scale of the frame it is being searched in.
func (f *Frame) Resize(factor float64) *Frame {
	w := int(math.Round(float64(f.Width) * factor))
	h := int(math.Round(float64(f.Height) * factor))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	out := NewFrame(w, h, f.Scale*factor)
	for y := 0; y < h; y++ {
		sy := int(float64(y) / factor)
		if sy >= f.Height {
			sy = f.Height - 1
		}
		for x := 0; x < w; x++ {
			sx := int(float64(x) / factor)
			if sx >= f.Width {
				sx = f.Width - 1
			}
			out.Pix[y*w+x] = f.Pix[sy*f.Width+sx]
		}
	}
	return out
}
