package vision

import (
	"image"
	"image/color"

	"github.com/gatenet/edge-node/internal/models"
)

// frameToRGBA wraps a Frame's packed RGB pixels in an *image.RGBA without
// copying color data where possible, grounded on the FD teacher's
// pipeline.go preprocessing helpers.
func frameToRGBA(f models.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	n := f.Width * f.Height
	for i := 0; i < n; i++ {
		so := i * 3
		do := i * 4
		img.Pix[do] = f.Pix[so]
		img.Pix[do+1] = f.Pix[so+1]
		img.Pix[do+2] = f.Pix[so+2]
		img.Pix[do+3] = 255
	}
	return img
}

// cropRGBA extracts the region described by bbox, expanded by padFrac on
// each side and clamped to image bounds, matching the FD teacher's
// cropFace padding behaviour.
func cropRGBA(img *image.RGBA, bbox models.BBox, padFrac float32) *image.RGBA {
	bounds := img.Bounds()
	x1, y1, x2, y2 := int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3])

	w, h := x2-x1, y2-y1
	if w <= 0 || h <= 0 {
		return nil
	}
	padW, padH := int(float32(w)*padFrac), int(float32(h)*padFrac)
	x1, y1, x2, y2 = x1-padW, y1-padH, x2+padW, y2+padH

	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}
	if x2-x1 <= 0 || y2-y1 <= 0 {
		return nil
	}

	out := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	for y := y1; y < y2; y++ {
		srcOff := img.PixOffset(x1, y)
		dstOff := out.PixOffset(0, y-y1)
		copy(out.Pix[dstOff:dstOff+(x2-x1)*4], img.Pix[srcOff:srcOff+(x2-x1)*4])
	}
	return out
}

// resizeNearest resizes img to targetW x targetH using nearest-neighbour
// sampling, the same strategy the FD teacher uses for ONNX preprocessing.
func resizeNearest(img *image.RGBA, targetW, targetH int) *image.RGBA {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))

	for y := 0; y < targetH; y++ {
		srcY := bounds.Min.Y + y*srcH/targetH
		for x := 0; x < targetW; x++ {
			srcX := bounds.Min.X + x*srcW/targetW
			sOff := img.PixOffset(srcX, srcY)
			dOff := dst.PixOffset(x, y)
			copy(dst.Pix[dOff:dOff+4], img.Pix[sOff:sOff+4])
		}
	}
	return dst
}

// toCHWNormalized converts an RGBA image already sized to the model's
// input dimensions into planar CHW float32, normalized as (pixel-mean)/std
// per channel.
func toCHWNormalized(img *image.RGBA, mean, std [3]float32) []float32 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	plane := w * h
	data := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := img.PixOffset(x, y)
			idx := y*w + x
			data[idx] = (float32(img.Pix[off]) - mean[0]) / std[0]
			data[plane+idx] = (float32(img.Pix[off+1]) - mean[1]) / std[1]
			data[2*plane+idx] = (float32(img.Pix[off+2]) - mean[2]) / std[2]
		}
	}
	return data
}

// toGray8 converts an RGBA image to 8-bit luma, used by the blur quality
// check.
func toGray8(img *image.RGBA) *image.Gray {
	gray := image.NewGray(img.Bounds())
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}
