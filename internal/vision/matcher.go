package vision

import (
	"errors"
	"image"
	"math"
)

// ErrTemplateTooLarge is returned when the (possibly rescaled) template
// does not fit inside the frame. The caller treats it as a normal
// negative result for that window.
var ErrTemplateTooLarge = errors.New("template larger than frame")

// rescaleTolerance is how far apart template and frame capture scales may
// be before the template is resized to the frame's scale.
const rescaleTolerance = 0.05

// Template is a named reference image, cropped from a window at capture
// time. The embedded frame's Scale records the capture scale of the
// display the template was grabbed from.
type Template struct {
	Name  string
	Frame *Frame
}

// Match is the result of searching one template in one frame.
type Match struct {
	// Score is the normalized cross-correlation peak, in [0, 1].
	Score float64
	// Location is the top-left corner of the best match, in
	// captured-pixel coordinates of the searched frame.
	Location image.Point
	// Size is the matched template size in captured pixels, after any
	// DPI rescaling.
	Size image.Point
}

// Center returns the match center in captured-pixel coordinates.
func (m Match) Center() image.Point {
	return image.Point{X: m.Location.X + m.Size.X/2, Y: m.Location.Y + m.Size.Y/2}
}

// MatchTemplate scores the presence of tpl inside frame using zero-mean
// normalized cross-correlation over the grayscale buffers. When several
// locations tie for the maximum, the first in raster scan order wins.
//
// If the template's capture scale differs from the frame's by more than
// rescaleTolerance, the template is resized to the frame's scale first,
// so a template grabbed on a standard display still matches inside a
// high-DPI capture.
func MatchTemplate(frame *Frame, tpl *Template) (Match, error) {
	t := tpl.Frame
	if frame.Scale > 0 && t.Scale > 0 {
		rel := frame.Scale / t.Scale
		if math.Abs(rel-1.0) > rescaleTolerance {
			t = t.Resize(rel)
		}
	}
	if t.Width > frame.Width || t.Height > frame.Height {
		return Match{}, ErrTemplateTooLarge
	}

	tMean := mean(t.Pix)
	tDev := make([]float64, len(t.Pix))
	var tNorm float64
	for i, v := range t.Pix {
		d := float64(v) - tMean
		tDev[i] = d
		tNorm += d * d
	}

	best := Match{Score: -1, Size: image.Point{X: t.Width, Y: t.Height}}
	win := make([]float64, len(t.Pix))
	for oy := 0; oy+t.Height <= frame.Height; oy++ {
		for ox := 0; ox+t.Width <= frame.Width; ox++ {
			var sum float64
			k := 0
			for y := 0; y < t.Height; y++ {
				row := frame.Pix[(oy+y)*frame.Width+ox:]
				for x := 0; x < t.Width; x++ {
					v := float64(row[x])
					win[k] = v
					sum += v
					k++
				}
			}
			wMean := sum / float64(len(win))
			var cross, wNorm float64
			for i, v := range win {
				d := v - wMean
				cross += d * tDev[i]
				wNorm += d * d
			}
			score := 0.0
			if tNorm > 0 && wNorm > 0 {
				score = cross / math.Sqrt(tNorm*wNorm)
			}
			if score > best.Score {
				best.Score = score
				best.Location = image.Point{X: ox, Y: oy}
			}
		}
	}
	if best.Score < 0 {
		best.Score = 0
	}
	return best, nil
}

func mean(pix []uint8) float64 {
	var sum float64
	for _, v := range pix {
		sum += float64(v)
	}
	return sum / float64(len(pix))
}
