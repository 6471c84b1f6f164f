package vision

import (
	"image"
	"image/color"
	"math"

	"github.com/gatenet/edge-node/internal/models"
)

// AlignedSize is the canonical square crop ArcFace-style embedders expect.
const AlignedSize = 112

// canonicalTemplate is the standard 5-point ArcFace alignment target for a
// 112x112 output: left eye, right eye, nose, left mouth corner, right
// mouth corner.
var canonicalTemplate = [5][2]float64{
	{38.2946, 51.6963},
	{73.5318, 51.5014},
	{56.0252, 71.7366},
	{41.5493, 92.3655},
	{70.7299, 92.2041},
}

// Aligner warps a detected face's five landmarks onto the canonical
// template via a similarity (Umeyama) transform, producing a 112x112
// crop suitable for the embedder. No example repo in the retrieval pack
// ships a 2D Procrustes/affine-warp routine, so both the transform solve
// and the bilinear resampler below are hand-built on top of image/math.
type Aligner struct{}

// NewAligner constructs a stateless Aligner.
func NewAligner() *Aligner { return &Aligner{} }

// Align returns the 112x112 aligned crop for det's landmarks, or an error
// if landmarks were not populated by the detector.
func (a *Aligner) Align(frame models.Frame, det models.Detection) (*image.RGBA, error) {
	if !det.Landmarks.HasPoints() {
		return nil, errNoLandmarks
	}

	var src [5][2]float64
	for i, p := range det.Landmarks {
		src[i] = [2]float64{float64(p[0]), float64(p[1])}
	}

	m := umeyama(src, canonicalTemplate)
	rgba := frameToRGBA(frame)
	return warpAffine(rgba, m, AlignedSize, AlignedSize), nil
}

type errString string

func (e errString) Error() string { return string(e) }

const errNoLandmarks = errString("vision: detection has no landmarks to align on")

// affine2D is a 2x3 row-major similarity transform: [a b tx; c d ty].
type affine2D [6]float64

// umeyama solves for the least-squares similarity transform (rotation,
// uniform scale, translation, no reflection) mapping src onto dst,
// following Umeyama (1991). The underlying 2x2 SVD has a closed form.
func umeyama(src, dst [5][2]float64) affine2D {
	n := float64(len(src))

	var meanSrc, meanDst [2]float64
	for i := range src {
		meanSrc[0] += src[i][0]
		meanSrc[1] += src[i][1]
		meanDst[0] += dst[i][0]
		meanDst[1] += dst[i][1]
	}
	meanSrc[0] /= n
	meanSrc[1] /= n
	meanDst[0] /= n
	meanDst[1] /= n

	var cov [2][2]float64
	var srcVar float64
	for i := range src {
		sx, sy := src[i][0]-meanSrc[0], src[i][1]-meanSrc[1]
		dx, dy := dst[i][0]-meanDst[0], dst[i][1]-meanDst[1]
		cov[0][0] += dx * sx
		cov[0][1] += dx * sy
		cov[1][0] += dy * sx
		cov[1][1] += dy * sy
		srcVar += sx*sx + sy*sy
	}
	cov[0][0] /= n
	cov[0][1] /= n
	cov[1][0] /= n
	cov[1][1] /= n
	srcVar /= n

	u, s, v := svd2x2(cov)
	det := u[0][0]*u[1][1]*v[0][0]*v[1][1] - u[0][1]*u[1][0]*v[0][0]*v[1][1] -
		u[0][0]*u[1][1]*v[0][1]*v[1][0] + u[0][1]*u[1][0]*v[0][1]*v[1][0]

	d := [2]float64{1, 1}
	if det < 0 {
		d[1] = -1
	}

	var r [2][2]float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			r[i][j] = u[i][0]*d[0]*v[j][0] + u[i][1]*d[1]*v[j][1]
		}
	}

	scale := 1.0
	if srcVar > 1e-12 {
		scale = (s[0]*d[0] + s[1]*d[1]) / srcVar
	}

	tx := meanDst[0] - scale*(r[0][0]*meanSrc[0]+r[0][1]*meanSrc[1])
	ty := meanDst[1] - scale*(r[1][0]*meanSrc[0]+r[1][1]*meanSrc[1])

	return affine2D{scale * r[0][0], scale * r[0][1], tx, scale * r[1][0], scale * r[1][1], ty}
}

// svd2x2 returns the closed-form SVD of a 2x2 matrix m = U * diag(s) * V^T.
func svd2x2(m [2][2]float64) (u [2][2]float64, s [2]float64, v [2][2]float64) {
	a, b, c, d := m[0][0], m[0][1], m[1][0], m[1][1]

	e := (a + d) / 2
	f := (a - d) / 2
	g := (c + b) / 2
	h := (c - b) / 2

	q := math.Hypot(e, h)
	r := math.Hypot(f, g)

	s[0] = q + r
	s[1] = q - r

	a1 := math.Atan2(g, f)
	a2 := math.Atan2(h, e)

	theta := (a2 - a1) / 2
	phi := (a2 + a1) / 2

	u = [2][2]float64{{math.Cos(phi), -math.Sin(phi)}, {math.Sin(phi), math.Cos(phi)}}
	v = [2][2]float64{{math.Cos(theta), -math.Sin(theta)}, {math.Sin(theta), math.Cos(theta)}}
	return u, s, v
}

// warpAffine renders the inverse-mapped, bilinearly-sampled output of
// applying m to src, into a dstW x dstH canvas.
func warpAffine(src *image.RGBA, m affine2D, dstW, dstH int) *image.RGBA {
	det := m[0]*m[4] - m[1]*m[3]
	var inv affine2D
	if math.Abs(det) > 1e-9 {
		invDet := 1 / det
		inv[0] = m[4] * invDet
		inv[1] = -m[1] * invDet
		inv[3] = -m[3] * invDet
		inv[4] = m[0] * invDet
		inv[2] = -(inv[0]*m[2] + inv[1]*m[5])
		inv[5] = -(inv[3]*m[2] + inv[4]*m[5])
	}

	bounds := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			sx := inv[0]*float64(x) + inv[1]*float64(y) + inv[2]
			sy := inv[3]*float64(x) + inv[4]*float64(y) + inv[5]
			out.Set(x, y, bilinearSample(src, bounds, sx, sy))
		}
	}
	return out
}

func bilinearSample(src *image.RGBA, bounds image.Rectangle, sx, sy float64) color.RGBA {
	x0 := int(math.Floor(sx))
	y0 := int(math.Floor(sy))
	x1, y1 := x0+1, y0+1
	fx, fy := sx-float64(x0), sy-float64(y0)

	c00 := clampedAt(src, bounds, x0, y0)
	c10 := clampedAt(src, bounds, x1, y0)
	c01 := clampedAt(src, bounds, x0, y1)
	c11 := clampedAt(src, bounds, x1, y1)

	lerp := func(a, b uint8, t float64) float64 { return float64(a) + (float64(b)-float64(a))*t }
	r := lerp(uint8(lerp(c00.R, c10.R, fx)), uint8(lerp(c01.R, c11.R, fx)), fy)
	g := lerp(uint8(lerp(c00.G, c10.G, fx)), uint8(lerp(c01.G, c11.G, fx)), fy)
	bch := lerp(uint8(lerp(c00.B, c10.B, fx)), uint8(lerp(c01.B, c11.B, fx)), fy)

	return color.RGBA{R: uint8(r), G: uint8(g), B: uint8(bch), A: 255}
}

func clampedAt(src *image.RGBA, bounds image.Rectangle, x, y int) color.RGBA {
	if x < bounds.Min.X {
		x = bounds.Min.X
	}
	if x >= bounds.Max.X {
		x = bounds.Max.X - 1
	}
	if y < bounds.Min.Y {
		y = bounds.Min.Y
	}
	if y >= bounds.Max.Y {
		y = bounds.Max.Y - 1
	}
	off := src.PixOffset(x, y)
	return color.RGBA{R: src.Pix[off], G: src.Pix[off+1], B: src.Pix[off+2], A: 255}
}
