package vision

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFrame builds a deterministic, non-repeating gradient so sub-crops
// match at exactly one location.
func testFrame(w, h int, scale float64) *Frame {
	f := NewFrame(w, h, scale)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Pix[y*w+x] = uint8((x*7 + y*13 + x*y) % 251)
		}
	}
	return f
}

func TestMatchTemplate_ExactSubCrop(t *testing.T) {
	frame := testFrame(64, 48, 1.0)
	region := image.Rect(20, 10, 36, 22)
	sub, err := frame.SubFrame(region)
	require.NoError(t, err)

	m, err := MatchTemplate(frame, &Template{Name: "crop", Frame: sub})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, m.Score, 0.99)
	assert.Equal(t, region.Min, m.Location)
	assert.Equal(t, image.Point{X: 16, Y: 12}, m.Size)
}

func TestMatchTemplate_RasterOrderTieBreak(t *testing.T) {
	// Two identical bright squares on a dark frame; the earlier one in
	// raster order must win.
	frame := NewFrame(40, 20, 1.0)
	stamp := func(ox, oy int) {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				frame.Pix[(oy+y)*frame.Width+ox+x] = 200
			}
		}
	}
	stamp(5, 8)
	stamp(25, 8)

	tpl := NewFrame(4, 4, 1.0)
	for i := range tpl.Pix {
		tpl.Pix[i] = 200
	}
	// Give the template a single darker pixel so it is not constant
	// (a zero-variance template has no defined correlation).
	tpl.Pix[0] = 180
	frame.Pix[8*frame.Width+5] = 180
	frame.Pix[8*frame.Width+25] = 180

	m, err := MatchTemplate(frame, &Template{Name: "square", Frame: tpl})
	require.NoError(t, err)
	assert.Equal(t, image.Point{X: 5, Y: 8}, m.Location)
}

func TestMatchTemplate_NoMatchScoresLow(t *testing.T) {
	frame := testFrame(32, 32, 1.0)
	tpl := NewFrame(8, 8, 1.0)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			// Checkerboard, absent from the gradient frame.
			if (x+y)%2 == 0 {
				tpl.Pix[y*8+x] = 255
			}
		}
	}
	m, err := MatchTemplate(frame, &Template{Name: "checker", Frame: tpl})
	require.NoError(t, err)
	assert.Less(t, m.Score, 0.9)
}

func TestMatchTemplate_TooLarge(t *testing.T) {
	frame := testFrame(8, 8, 1.0)
	tpl := testFrame(16, 16, 1.0)
	_, err := MatchTemplate(frame, &Template{Name: "big", Frame: tpl})
	assert.ErrorIs(t, err, ErrTemplateTooLarge)
}

func TestMatchTemplate_RescalesTemplateToFrameScale(t *testing.T) {
	// A template captured at scale 1 searched in a scale-2 frame must be
	// doubled before matching. Build the frame as a 2x nearest-neighbour
	// blow-up of a base image so the rescaled template aligns exactly.
	base := testFrame(30, 20, 1.0)
	frame := base.Resize(2.0)
	frame.Scale = 2.0

	region := image.Rect(4, 6, 12, 12)
	tpl, err := base.SubFrame(region)
	require.NoError(t, err)
	tpl.Scale = 1.0

	m, err := MatchTemplate(frame, &Template{Name: "scaled", Frame: tpl})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, m.Score, 0.99)
	assert.Equal(t, image.Point{X: 8, Y: 12}, m.Location)
	assert.Equal(t, image.Point{X: 16, Y: 12}, m.Size)
}

func TestSubFrame_OutsideBounds(t *testing.T) {
	frame := testFrame(10, 10, 1.0)
	_, err := frame.SubFrame(image.Rect(5, 5, 20, 20))
	assert.Error(t, err)
}
