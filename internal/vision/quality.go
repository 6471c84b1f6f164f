package vision

import (
	"image"
	"math"

	"github.com/gatenet/edge-node/internal/models"
)

// QualityConfig holds the thresholds a detection must clear before it is
// handed to the tracker, per SPEC_FULL.md §4.5.
type QualityConfig struct {
	MinWidthRecognition float32
	MinWidthStrict      float32
	BlurVarianceMin     float64 // 0 disables the blur check
	MaxYawRatio         float64 // 0 disables the pose check
	MaxPitchRatio       float64
}

// DefaultQualityConfig matches the reference thresholds: 60px for
// recognition-eligible faces, 80px under strict mode, blur check disabled
// for motion tolerance.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		MinWidthRecognition: 60,
		MinWidthStrict:      80,
		BlurVarianceMin:     0,
		MaxYawRatio:         0.35,
		MaxPitchRatio:       0.0,
	}
}

// RejectReason explains why Evaluate rejected a detection.
type RejectReason string

const (
	RejectNone  RejectReason = ""
	RejectSize  RejectReason = "too_small"
	RejectBlur  RejectReason = "blurry"
	RejectYaw   RejectReason = "yaw"
	RejectPitch RejectReason = "pitch"
)

// Filter evaluates detections against QualityConfig.
type Filter struct {
	cfg QualityConfig
}

// NewFilter constructs a Filter with cfg.
func NewFilter(cfg QualityConfig) *Filter { return &Filter{cfg: cfg} }

// Evaluate returns RejectNone when det passes every enabled check, or the
// first failing reason otherwise. strict selects the 80px strict-mode
// minimum instead of the 60px recognition minimum.
func (f *Filter) Evaluate(frame models.Frame, det models.Detection, strict bool) RejectReason {
	width := det.BBox[2] - det.BBox[0]
	minWidth := f.cfg.MinWidthRecognition
	if strict {
		minWidth = f.cfg.MinWidthStrict
	}
	if width < minWidth {
		return RejectSize
	}

	if f.cfg.BlurVarianceMin > 0 {
		rgba := frameToRGBA(frame)
		crop := cropRGBA(rgba, det.BBox, 0)
		if crop != nil && laplacianVariance(crop) < f.cfg.BlurVarianceMin {
			return RejectBlur
		}
	}

	if det.Landmarks.HasPoints() {
		if f.cfg.MaxYawRatio > 0 && yawRatio(det.Landmarks) > f.cfg.MaxYawRatio {
			return RejectYaw
		}
		if f.cfg.MaxPitchRatio > 0 && pitchRatio(det.Landmarks) > f.cfg.MaxPitchRatio {
			return RejectPitch
		}
	}

	return RejectNone
}

// yawRatio estimates left-right head rotation from the asymmetry of the
// nose position relative to the eye line, 0 for a perfectly centered nose.
func yawRatio(lm models.Landmarks) float64 {
	leftEye, rightEye, nose := lm[0], lm[1], lm[2]
	eyeSpan := float64(rightEye[0] - leftEye[0])
	if eyeSpan == 0 {
		return 0
	}
	mid := (float64(leftEye[0]) + float64(rightEye[0])) / 2
	return math.Abs(float64(nose[0])-mid) / eyeSpan
}

// pitchRatio estimates up-down head rotation from the ratio of
// nose-to-eyes distance against nose-to-mouth distance.
func pitchRatio(lm models.Landmarks) float64 {
	leftEye, rightEye, nose, leftMouth, rightMouth := lm[0], lm[1], lm[2], lm[3], lm[4]
	eyeMidY := (float64(leftEye[1]) + float64(rightEye[1])) / 2
	mouthMidY := (float64(leftMouth[1]) + float64(rightMouth[1])) / 2
	noseToEyes := float64(nose[1]) - eyeMidY
	noseToMouth := mouthMidY - float64(nose[1])
	if noseToMouth == 0 {
		return 0
	}
	return math.Abs(noseToEyes/noseToMouth - 1)
}

// laplacianVariance computes a focus-measure over the image's luma plane:
// the variance of its discrete Laplacian, low for blurry, high for sharp.
func laplacianVariance(img *image.RGBA) float64 {
	gray := toGray8(img)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	at := func(x, y int) float64 { return float64(gray.GrayAt(x, y).Y) }

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := -4*at(x, y) + at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1)
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}
