package vision

import (
	"fmt"
	"sort"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/gatenet/edge-node/internal/models"
)

// detectorStrides mirrors RetinaFace det_10g's three FPN levels.
var detectorStrides = []int{8, 16, 32}

// anchorsPerStride is the number of anchors per pixel at each stride.
const anchorsPerStride = 2

// Detector runs RetinaFace-style face detection over ONNX Runtime.
type Detector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	nmsIoU        float32
	inputW        int
	inputH        int
}

type outputSpec struct {
	name  string
	shape ort.Shape
}

// NewDetector loads a RetinaFace det_10g-compatible ONNX model at 640x640
// input. threshold is the minimum detection score to keep (the supervisor
// passes 0.5); the NMS IoU threshold is fixed at 0.4.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	inputW, inputH := 640, 640

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("vision: create detector input tensor: %w", err)
	}

	// det_10g output shapes carry no batch dimension:
	// 12800 = (640/8)*(640/8)*2, 3200 = (640/16)*(640/16)*2, 800 = (640/32)*(640/32)*2
	specs := []outputSpec{
		{"448", ort.NewShape(12800, 1)},
		{"471", ort.NewShape(3200, 1)},
		{"494", ort.NewShape(800, 1)},
		{"451", ort.NewShape(12800, 4)},
		{"474", ort.NewShape(3200, 4)},
		{"497", ort.NewShape(800, 4)},
		{"454", ort.NewShape(12800, 10)},
		{"477", ort.NewShape(3200, 10)},
		{"500", ort.NewShape(800, 10)},
	}

	outputNames := make([]string, len(specs))
	outputTensors := make([]*ort.Tensor[float32], len(specs))
	outputValues := make([]ort.Value, len(specs))
	for i, spec := range specs {
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("vision: create detector output tensor %s: %w", spec.name, err)
		}
		outputNames[i] = spec.name
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, outputNames,
		[]ort.Value{inputTensor}, outputValues, opts)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("vision: create detector session: %w", err)
	}

	return &Detector{
		session: session, inputTensor: inputTensor, outputTensors: outputTensors,
		threshold: threshold, nmsIoU: 0.4, inputW: inputW, inputH: inputH,
	}, nil
}

// InputSize returns the model's expected input dimensions.
func (d *Detector) InputSize() (int, int) { return d.inputW, d.inputH }

// Close releases the ONNX session and its tensors.
func (d *Detector) Close() {
	d.session.Destroy()
	d.inputTensor.Destroy()
	for _, t := range d.outputTensors {
		t.Destroy()
	}
}

// Detect resizes frame to the model's input size, runs inference, decodes
// the anchor grids at each stride, rescales boxes back to frame
// coordinates, and applies non-maximum suppression.
func (d *Detector) Detect(frame models.Frame) ([]models.Detection, error) {
	rgba := frameToRGBA(frame)
	resized := resizeNearest(rgba, d.inputW, d.inputH)
	chw := toCHWNormalized(resized, [3]float32{127.5, 127.5, 127.5}, [3]float32{128, 128, 128})

	copy(d.inputTensor.GetData(), chw)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("vision: detector inference: %w", err)
	}

	scaleW := float32(frame.Width) / float32(d.inputW)
	scaleH := float32(frame.Height) / float32(d.inputH)

	var dets []models.Detection
	for si, stride := range detectorStrides {
		scores := d.outputTensors[si].GetData()
		bboxes := d.outputTensors[si+3].GetData()
		landmarks := d.outputTensors[si+6].GetData()
		dets = append(dets, decodeStride(scores, bboxes, landmarks, stride, d.inputW, d.inputH,
			scaleW, scaleH, float32(frame.Width), float32(frame.Height), d.threshold)...)
	}

	return nms(dets, d.nmsIoU), nil
}

func decodeStride(scores, bboxes, landmarks []float32, stride, inputW, inputH int,
	scaleW, scaleH, maxW, maxH, threshold float32) []models.Detection {

	fmW, fmH := inputW/stride, inputH/stride
	var out []models.Detection

	idx := 0
	for cy := 0; cy < fmH; cy++ {
		for cx := 0; cx < fmW; cx++ {
			for a := 0; a < anchorsPerStride; a++ {
				score := scores[idx]
				if score >= threshold {
					anchorX := float32(cx) * float32(stride)
					anchorY := float32(cy) * float32(stride)
					st := float32(stride)

					x1 := clampF((anchorX-bboxes[idx*4+0]*st)*scaleW, 0, maxW)
					y1 := clampF((anchorY-bboxes[idx*4+1]*st)*scaleH, 0, maxH)
					x2 := clampF((anchorX+bboxes[idx*4+2]*st)*scaleW, 0, maxW)
					y2 := clampF((anchorY+bboxes[idx*4+3]*st)*scaleH, 0, maxH)

					var lm models.Landmarks
					for li := 0; li < 5; li++ {
						lm[li][0] = (anchorX + landmarks[idx*10+li*2]*st) * scaleW
						lm[li][1] = (anchorY + landmarks[idx*10+li*2+1]*st) * scaleH
					}

					out = append(out, models.Detection{
						BBox:      models.BBox{x1, y1, x2, y2},
						Score:     score,
						Landmarks: lm,
					})
				}
				idx++
			}
		}
	}
	return out
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// nms applies confidence-sorted greedy non-maximum suppression.
func nms(dets []models.Detection, iouThreshold float32) []models.Detection {
	if len(dets) == 0 {
		return dets
	}
	sort.Slice(dets, func(i, j int) bool { return dets[i].Score > dets[j].Score })

	keep := make([]bool, len(dets))
	for i := range keep {
		keep[i] = true
	}
	for i := range dets {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(dets); j++ {
			if keep[j] && dets[i].BBox.IoU(dets[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []models.Detection
	for i, d := range dets {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}
