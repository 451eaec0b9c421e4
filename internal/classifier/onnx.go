package classifier

import (
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
)

// ModelMetadata describes the ONNX model's tensor shapes and label order.
type ModelMetadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// ONNXClassifier runs a trained emotion model through onnxruntime. Input and
// output tensors are allocated once and reused, so inference runs are
// serialized with a mutex.
type ONNXClassifier struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	metadata     ModelMetadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewONNXClassifier loads the model and its metadata JSON and prepares an
// inference session.
func NewONNXClassifier(modelPath, metadataPath string) (*ONNXClassifier, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model metadata %s: %w", metadataPath, err)
	}

	var metadata ModelMetadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse model metadata: %w", err)
	}
	if len(metadata.Classes) == 0 || metadata.ImageSize <= 0 {
		return nil, fmt.Errorf("model metadata is incomplete: classes=%d image_size=%d",
			len(metadata.Classes), metadata.ImageSize)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Info("ONNX classifier initialized",
		"model_path", modelPath,
		"classes", metadata.Classes,
		"image_size", metadata.ImageSize)

	return &ONNXClassifier{
		session:      session,
		metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Classify preprocesses the image into the model's input tensor, runs
// inference, and returns the argmax class with its score.
func (c *ONNXClassifier) Classify(img image.Image) (string, float64, error) {
	inputData := c.preprocess(img)

	c.mu.Lock()
	defer c.mu.Unlock()

	copy(c.inputTensor.GetData(), inputData)
	if err := c.session.Run(); err != nil {
		return "", 0, fmt.Errorf("%w: inference failed: %v", ErrModelUnavailable, err)
	}

	outputData := c.outputTensor.GetData()
	if len(outputData) == 0 {
		return "", 0, fmt.Errorf("%w: empty model output", ErrModelUnavailable)
	}

	maxIdx := 0
	maxVal := outputData[0]
	for i, val := range outputData {
		if i >= len(c.metadata.Classes) {
			break
		}
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}

	return c.metadata.Classes[maxIdx], float64(maxVal), nil
}

// preprocess resizes the image to the model's square input size and lays the
// pixels out as a normalized float32 CHW tensor. Rows are converted in
// parallel since the per-pixel work is independent.
func (c *ONNXClassifier) preprocess(img image.Image) []float32 {
	size := uint(c.metadata.ImageSize)
	resized := resize.Resize(size, size, img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	inputData := make([]float32, 3*width*height)

	parallelRows(height, func(y int) {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			idx := y*width + x
			inputData[idx] = float32(r) / 65535.0
			inputData[width*height+idx] = float32(g) / 65535.0
			inputData[2*width*height+idx] = float32(b) / 65535.0
		}
	})

	return inputData
}

// Close releases the tensors and session.
func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inputTensor != nil {
		c.inputTensor.Destroy()
		c.inputTensor = nil
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
		c.outputTensor = nil
	}
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
	ort.DestroyEnvironment()
	return nil
}
