// Package annotate draws recognition results onto frames for operator review.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var boxColor = color.RGBA{255, 0, 0, 255}

// drawHLine draws a horizontal line on the image.
func drawHLine(dst *image.RGBA, x1, x2, y int, c color.RGBA) {
	bounds := dst.Bounds()
	if y < 0 || y >= bounds.Dy() {
		return
	}
	for x := x1; x <= x2; x++ {
		if x >= 0 && x < bounds.Dx() {
			dst.Set(x, y, c)
		}
	}
}

// drawVLine draws a vertical line on the image.
func drawVLine(dst *image.RGBA, y1, y2, x int, c color.RGBA) {
	bounds := dst.Bounds()
	if x < 0 || x >= bounds.Dx() {
		return
	}
	for y := y1; y <= y2; y++ {
		if y >= 0 && y < bounds.Dy() {
			dst.Set(x, y, c)
		}
	}
}

// drawBox draws a rectangle at the given pixel coordinates.
func drawBox(dst *image.RGBA, bbox []float64, lineWidth, padding int) {
	if len(bbox) != 4 {
		return
	}

	x1 := int(bbox[0]) - padding
	y1 := int(bbox[1]) - padding
	x2 := int(bbox[2]) + padding
	y2 := int(bbox[3]) + padding

	for w := range lineWidth {
		drawHLine(dst, x1, x2, y1+w, boxColor)
		drawHLine(dst, x1, x2, y2-w, boxColor)
		drawVLine(dst, y1, y2, x1+w, boxColor)
		drawVLine(dst, y1, y2, x2+w, boxColor)
	}
}

// drawLabel renders text just above the box, or inside when the box touches
// the top edge.
func drawLabel(dst *image.RGBA, bbox []float64, text string) {
	if len(bbox) != 4 || text == "" {
		return
	}

	x := int(bbox[0])
	y := int(bbox[1]) - 6
	if y < basicfont.Face7x13.Height {
		y = int(bbox[1]) + basicfont.Face7x13.Height + 4
	}

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(boxColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
}

// Box is one labeled face region.
type Box struct {
	BBox       []float64 // [x1, y1, x2, y2] in pixels
	Label      string
	Confidence float64 // 0 hides the confidence suffix
}

// Frame draws every box with its label onto the JPEG frame and returns a new
// JPEG.
func Frame(frame []byte, boxes []Box) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)

	for _, box := range boxes {
		drawBox(dst, box.BBox, 3, 6)
		label := box.Label
		if box.Confidence > 0 {
			label = fmt.Sprintf("%s (%.0f%%)", box.Label, box.Confidence)
		}
		drawLabel(dst, box.BBox, label)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode annotated frame: %w", err)
	}
	return buf.Bytes(), nil
}
