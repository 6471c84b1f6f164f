package vision

import (
	"image"
	"testing"

	"github.com/gatenet/edge-node/internal/models"
)

func solidFrame(w, h int, r, g, b byte) models.Frame {
	pix := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		pix[i*3], pix[i*3+1], pix[i*3+2] = r, g, b
	}
	return models.Frame{Width: w, Height: h, Pix: pix}
}

func TestAlignProducesCanonicalSize(t *testing.T) {
	frame := solidFrame(200, 200, 128, 128, 128)
	det := models.Detection{
		BBox: models.BBox{50, 50, 150, 150},
		Landmarks: models.Landmarks{
			{70, 80}, {130, 80}, {100, 110}, {75, 140}, {125, 140},
		},
	}

	a := NewAligner()
	out, err := a.Align(frame, det)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Bounds() != image.Rect(0, 0, AlignedSize, AlignedSize) {
		t.Fatalf("expected %dx%d output, got %v", AlignedSize, AlignedSize, out.Bounds())
	}
}

func TestAlignRejectsMissingLandmarks(t *testing.T) {
	frame := solidFrame(100, 100, 0, 0, 0)
	det := models.Detection{BBox: models.BBox{10, 10, 90, 90}}

	a := NewAligner()
	if _, err := a.Align(frame, det); err == nil {
		t.Fatalf("expected error for detection without landmarks")
	}
}

func TestUmeyamaIdentityWhenSourceMatchesTemplate(t *testing.T) {
	var src [5][2]float64
	for i, p := range canonicalTemplate {
		src[i] = p
	}

	m := umeyama(src, canonicalTemplate)
	if diff := math32Abs(m[0] - 1); diff > 1e-6 {
		t.Fatalf("expected identity scale/rotation, got a=%v", m[0])
	}
	if diff := math32Abs(m[2]); diff > 1e-6 {
		t.Fatalf("expected zero x translation, got %v", m[2])
	}
}

func math32Abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
