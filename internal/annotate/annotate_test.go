package annotate

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func grayFrame(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	gray := color.RGBA{128, 128, 128, 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, gray)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("failed to encode test frame: %v", err)
	}
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode annotated frame: %v", err)
	}
	return img
}

// isReddish reports whether a pixel is dominated by the red channel, allowing
// for JPEG compression artifacts.
func isReddish(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r > 2*g && r > 2*b
}

func TestFrameDrawsBox(t *testing.T) {
	frame := grayFrame(t, 200, 200)
	out, err := Frame(frame, []Box{
		{BBox: []float64{50, 50, 150, 150}, Label: "Alice Johnson", Confidence: 87},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	img := decode(t, out)
	// Top edge of the box sits at y1-padding.
	if !isReddish(img.At(100, 44)) {
		t.Error("expected red pixel on the top box edge")
	}
	// Left edge.
	if !isReddish(img.At(44, 100)) {
		t.Error("expected red pixel on the left box edge")
	}
	// Box interior stays gray.
	if isReddish(img.At(100, 100)) {
		t.Error("box interior should not be painted")
	}
}

func TestFrameNoBoxesPassesThrough(t *testing.T) {
	frame := grayFrame(t, 100, 80)
	out, err := Frame(frame, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	img := decode(t, out)
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 80 {
		t.Errorf("unexpected dimensions %v", img.Bounds())
	}
}

func TestFrameOutOfBoundsBoxClipped(t *testing.T) {
	frame := grayFrame(t, 100, 100)
	// Box partially outside the image must not panic.
	_, err := Frame(frame, []Box{
		{BBox: []float64{-20, -20, 150, 150}, Label: "Edge Case"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFrameInvalidImage(t *testing.T) {
	if _, err := Frame([]byte("not an image"), nil); err == nil {
		t.Error("expected decode error")
	}
}
