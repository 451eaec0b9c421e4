package classifier

import (
	"errors"
	"image"
)

// Labels is the fixed set of emotion labels every classifier draws from.
var Labels = []string{"angry", "disgust", "fear", "happy", "neutral", "sad", "surprise"}

// ErrModelUnavailable is returned when a model-backed classifier cannot
// produce a prediction (missing model file, failed inference run).
var ErrModelUnavailable = errors.New("classification model unavailable")

// Classifier assigns one label from Labels plus a confidence in [0, 1]
// to an image. Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(img image.Image) (label string, confidence float64, err error)
	Close() error
}

// IsValidLabel reports whether label belongs to the fixed label set.
func IsValidLabel(label string) bool {
	for _, l := range Labels {
		if l == label {
			return true
		}
	}
	return false
}
