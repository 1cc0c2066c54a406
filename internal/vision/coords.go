package vision

import (
	"image"
	"math"
)

// PixelToLogical converts a point in captured-pixel coordinates to the
// logical coordinate space used for input injection. scale must be the
// capture scale of the frame the point was found in; using any other
// scale silently misdirects the click.
func PixelToLogical(p image.Point, scale float64) image.Point {
	return image.Point{
		X: int(math.Round(float64(p.X) / scale)),
		Y: int(math.Round(float64(p.Y) / scale)),
	}
}

// LogicalToPixel is the exact inverse of PixelToLogical.
func LogicalToPixel(p image.Point, scale float64) image.Point {
	return image.Point{
		X: int(math.Round(float64(p.X) * scale)),
		Y: int(math.Round(float64(p.Y) * scale)),
	}
}
