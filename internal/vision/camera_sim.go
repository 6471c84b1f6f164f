//go:build !cgo

package vision

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// SimCamera is a non-cgo synthetic camera: a moving box on a grey field,
// keeping the module buildable without OpenCV present. It satisfies the
// same Camera interface as GoCVCamera.
type SimCamera struct {
	mu      sync.Mutex
	opened  bool
	width   int
	height  int
	started time.Time
}

func NewSimCamera() *SimCamera { return &SimCamera{} }

func (c *SimCamera) Open(deviceIndex, width, height, fps int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	c.width, c.height = width, height
	c.opened = true
	c.started = time.Now()
	return nil
}

func (c *SimCamera) Read() ([]byte, int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return nil, 0, 0, fmt.Errorf("camera not opened")
	}

	pix := make([]byte, c.width*c.height*3)
	for i := range pix {
		pix[i] = 96
	}

	t := time.Since(c.started).Seconds()
	cx := int(float64(c.width)/2 + float64(c.width)/4*math.Sin(t))
	cy := c.height / 2
	boxHalf := 40

	for y := cy - boxHalf; y < cy+boxHalf; y++ {
		if y < 0 || y >= c.height {
			continue
		}
		for x := cx - boxHalf; x < cx+boxHalf; x++ {
			if x < 0 || x >= c.width {
				continue
			}
			off := (y*c.width + x) * 3
			pix[off], pix[off+1], pix[off+2] = 200, 180, 160
		}
	}

	return pix, c.width, c.height, nil
}

func (c *SimCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = false
	return nil
}
