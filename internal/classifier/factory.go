package classifier

import (
	"fmt"
	"log/slog"
)

// NewClassifier creates a classifier based on the configured type.
func NewClassifier(classifierType, modelPath, metadataPath string) (Classifier, error) {
	switch classifierType {
	case "", "random":
		slog.Info("using random demo classifier; predictions are placeholders")
		return NewRandomClassifier(), nil
	case "onnx":
		return NewONNXClassifier(modelPath, metadataPath)
	default:
		return nil, fmt.Errorf("unsupported classifier type: %s", classifierType)
	}
}
