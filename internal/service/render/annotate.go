package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"urbanvision/internal/model"
	"urbanvision/internal/registry"
	"urbanvision/internal/service/analysis"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	// BoxLineWidth is the outline width in pixels.
	BoxLineWidth = 3.0
	// LabelOffset is the gap between a label baseline and the box top edge.
	LabelOffset = 4.0
	minFontSize = 12.0
)

// fallback for names missing from the registry
var defaultColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Annotate draws one rectangle and one label per detail on a fresh copy of img.
// The input image is never modified. Labels sit just above the box; when that
// would leave the canvas they are drawn inside the box below its top edge, and
// they never start left of x=0.
func Annotate(img image.Image, details []model.Detail, reg *registry.Registry) (*image.RGBA, error) {
	if img == nil {
		return nil, errors.New("annotate: nil image")
	}

	canvas := ToRGBA(img)
	if len(details) == 0 {
		return canvas, nil
	}

	dc := gg.NewContextForRGBA(canvas)
	dc.SetFontFace(truetype.NewFace(labelFont, &truetype.Options{Size: fontSize(canvas.Bounds().Dy())}))

	for i, d := range details {
		col := defaultColor
		if entry, ok := reg.ByName(d.Name); ok {
			col = entry.Color
		}
		b := d.Box.Normalized()
		if math.IsNaN(b.X1) || math.IsNaN(b.Y1) || math.IsNaN(b.X2) || math.IsNaN(b.Y2) {
			return nil, fmt.Errorf("annotate: detail %d has an invalid box", i)
		}

		dc.SetColor(col)
		dc.SetLineWidth(BoxLineWidth)
		dc.DrawRectangle(b.X1, b.Y1, b.Width(), b.Height())
		dc.Stroke()

		label := analysis.FormatLabel(d)
		_, textHeight := dc.MeasureString(label)
		x, y := labelPosition(b, textHeight)
		dc.DrawString(label, x, y)
	}

	return canvas, nil
}

// labelPosition returns the baseline origin for a label of the given height.
func labelPosition(b model.Box, textHeight float64) (float64, float64) {
	x := math.Max(b.X1, 0)
	y := b.Y1 - LabelOffset
	if y-textHeight < 0 {
		y = b.Y1 + BoxLineWidth + textHeight
	}
	return x, y
}

func fontSize(imageHeight int) float64 {
	return math.Max(minFontSize, float64(imageHeight)/40)
}
