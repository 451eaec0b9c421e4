package classifier

import (
	"image"
	"math"
	"math/rand/v2"
)

// RandomClassifier is the demo implementation: it picks a label uniformly at
// random and a confidence uniformly in [0.70, 0.95] rounded to two decimals.
// This is a placeholder policy for running the pipeline without a trained
// model; it makes no statement about the image content.
type RandomClassifier struct{}

// NewRandomClassifier creates the demo classifier.
func NewRandomClassifier() *RandomClassifier {
	return &RandomClassifier{}
}

// Classify returns a random label and confidence. It never fails.
func (c *RandomClassifier) Classify(_ image.Image) (string, float64, error) {
	label := Labels[rand.IntN(len(Labels))]
	confidence := math.Round((0.70+rand.Float64()*0.25)*100) / 100
	return label, confidence, nil
}

// Close is a no-op; the demo classifier holds no resources.
func (c *RandomClassifier) Close() error {
	return nil
}
