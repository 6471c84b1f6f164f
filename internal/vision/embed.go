package vision

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

// Embedder extracts 512-dimensional ArcFace-style embeddings over ONNX
// Runtime, grounded on the FD teacher's internal/vision/embed.go.
type Embedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	embDim       int
}

// NewEmbedder loads an ArcFace w600k_r50-compatible ONNX model, which
// expects a 112x112 aligned face crop and emits a 512-float embedding.
func NewEmbedder(modelPath string) (*Embedder, error) {
	inputW, inputH := 112, 112
	embDim := 512

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("vision: create embedder input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(embDim))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("vision: create embedder output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, []string{"683"},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("vision: create embedder session: %w", err)
	}

	return &Embedder{
		session: session, inputTensor: inputTensor, outputTensor: outputTensor,
		inputW: inputW, inputH: inputH, embDim: embDim,
	}, nil
}

// InputSize returns the expected aligned-face dimensions.
func (e *Embedder) InputSize() (int, int) { return e.inputW, e.inputH }

// EmbeddingDim returns the embedding vector length.
func (e *Embedder) EmbeddingDim() int { return e.embDim }

// Close releases the ONNX session and its tensors.
func (e *Embedder) Close() {
	e.session.Destroy()
	e.inputTensor.Destroy()
	e.outputTensor.Destroy()
}

// Extract runs embedding extraction on an aligned 112x112 face image and
// returns an L2-normalized embedding vector.
func (e *Embedder) Extract(aligned *image.RGBA) ([]float32, error) {
	chw := toCHWNormalized(aligned, [3]float32{127.5, 127.5, 127.5}, [3]float32{128, 128, 128})
	copy(e.inputTensor.GetData(), chw)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("vision: embedder inference: %w", err)
	}

	embedding := make([]float32, e.embDim)
	copy(embedding, e.outputTensor.GetData())
	l2Normalize(embedding)

	return embedding, nil
}

// l2Normalize scales v in place to unit length. No-op on a zero vector.
func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
