package vision

import (
	"testing"

	"github.com/gatenet/edge-node/internal/models"
)

func TestEvaluateRejectsSmallFace(t *testing.T) {
	f := NewFilter(DefaultQualityConfig())
	frame := solidFrame(200, 200, 100, 100, 100)
	det := models.Detection{BBox: models.BBox{10, 10, 40, 50}}

	if reason := f.Evaluate(frame, det, false); reason != RejectSize {
		t.Fatalf("expected RejectSize, got %q", reason)
	}
}

func TestEvaluateStrictRaisesMinimumWidth(t *testing.T) {
	f := NewFilter(DefaultQualityConfig())
	frame := solidFrame(200, 200, 100, 100, 100)
	det := models.Detection{BBox: models.BBox{10, 10, 75, 100}}

	if reason := f.Evaluate(frame, det, false); reason != RejectNone {
		t.Fatalf("expected pass under tracking threshold, got %q", reason)
	}
	if reason := f.Evaluate(frame, det, true); reason != RejectSize {
		t.Fatalf("expected RejectSize under strict threshold, got %q", reason)
	}
}

func TestEvaluatePassesFrontalFace(t *testing.T) {
	f := NewFilter(DefaultQualityConfig())
	frame := solidFrame(200, 200, 100, 100, 100)
	det := models.Detection{
		BBox: models.BBox{50, 50, 150, 150},
		Landmarks: models.Landmarks{
			{70, 80}, {130, 80}, {100, 110}, {75, 140}, {125, 140},
		},
	}

	if reason := f.Evaluate(frame, det, false); reason != RejectNone {
		t.Fatalf("expected frontal face to pass, got %q", reason)
	}
}

func TestEvaluateRejectsYawedFace(t *testing.T) {
	f := NewFilter(DefaultQualityConfig())
	frame := solidFrame(200, 200, 100, 100, 100)
	det := models.Detection{
		BBox: models.BBox{50, 50, 150, 150},
		Landmarks: models.Landmarks{
			{70, 80}, {130, 80}, {125, 110}, {75, 140}, {125, 140},
		},
	}

	if reason := f.Evaluate(frame, det, false); reason != RejectYaw {
		t.Fatalf("expected RejectYaw, got %q", reason)
	}
}
