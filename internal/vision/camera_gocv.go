//go:build cgo

package vision

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// fourccMJPEG is the FourCC code for Motion JPEG, widely supported by USB
// webcams and preferred for V4L2 capture.
const fourccMJPEG = 0x47504A4D

// GoCVCamera is the cgo-backed Camera implementation, grounded on the
// miface teacher's pkg/miface/camera_gocv.go.
type GoCVCamera struct {
	mu     sync.Mutex
	webcam *gocv.VideoCapture
	opened bool
}

// NewGoCVCamera constructs an unopened camera.
func NewGoCVCamera() *GoCVCamera {
	return &GoCVCamera{}
}

func (c *GoCVCamera) Open(deviceIndex, width, height, fps int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		return fmt.Errorf("camera already opened")
	}

	webcam, err := gocv.OpenVideoCaptureWithAPI(deviceIndex, gocv.VideoCaptureV4L2)
	if err != nil {
		return fmt.Errorf("open camera device %d: %w", deviceIndex, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return fmt.Errorf("camera device %d not found or unavailable", deviceIndex)
	}

	webcam.Set(gocv.VideoCaptureFOURCC, fourccMJPEG)
	webcam.Set(gocv.VideoCaptureBufferSize, 1)
	if width > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}
	if height > 0 {
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	if fps > 0 {
		webcam.Set(gocv.VideoCaptureFPS, float64(fps))
	}

	warmup := gocv.NewMat()
	webcam.Read(&warmup)
	warmup.Close()

	c.webcam = webcam
	c.opened = true
	return nil
}

func (c *GoCVCamera) Read() ([]byte, int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return nil, 0, 0, fmt.Errorf("camera not opened")
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := c.webcam.Read(&mat); !ok || mat.Empty() {
		return nil, 0, 0, fmt.Errorf("failed to read frame")
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)

	return rgb.ToBytes(), rgb.Cols(), rgb.Rows(), nil
}

func (c *GoCVCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return nil
	}
	c.opened = false
	return c.webcam.Close()
}
