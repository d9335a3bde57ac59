package classifier

import (
	"fmt"
	"math"
)

// SVM scores embeddings against a linear decision surface: one weight
// row and bias per class, softmax over the class scores. Matches the
// probability-calibrated linear classifiers the training pipeline
// exports.
type SVM struct {
	weights [][]float64
	bias    []float64
	dim     int
}

func newSVM(sec *svmSection, classes int) (*SVM, error) {
	if len(sec.Weights) != classes {
		return nil, fmt.Errorf("svm: %d weight rows for %d classes: %w", len(sec.Weights), classes, ErrBadArtifact)
	}
	if len(sec.Bias) != classes {
		return nil, fmt.Errorf("svm: %d bias terms for %d classes: %w", len(sec.Bias), classes, ErrBadArtifact)
	}

	dim := len(sec.Weights[0])
	if dim == 0 {
		return nil, fmt.Errorf("svm: empty weight row: %w", ErrBadArtifact)
	}
	for i, row := range sec.Weights {
		if len(row) != dim {
			return nil, fmt.Errorf("svm: weight row %d has %d features, want %d: %w", i, len(row), dim, ErrBadArtifact)
		}
	}

	return &SVM{weights: sec.Weights, bias: sec.Bias, dim: dim}, nil
}

func (s *SVM) Name() string       { return "SVM" }
func (s *SVM) Kind() Kind         { return KindSVM }
func (s *SVM) EmbeddingSize() int { return s.dim }

// Probabilities computes the softmax of the per-class decision scores.
func (s *SVM) Probabilities(emb []float32) ([]float64, error) {
	if len(emb) != s.dim {
		return nil, fmt.Errorf("got %d features, model fit on %d: %w", len(emb), s.dim, ErrShapeMismatch)
	}

	scores := make([]float64, len(s.weights))
	maxScore := math.Inf(-1)
	for c, row := range s.weights {
		score := s.bias[c]
		for i, w := range row {
			score += w * float64(emb[i])
		}
		scores[c] = score
		if score > maxScore {
			maxScore = score
		}
	}

	// Softmax shifted by the max score for numeric stability.
	var sum float64
	for c, score := range scores {
		scores[c] = math.Exp(score - maxScore)
		sum += scores[c]
	}
	for c := range scores {
		scores[c] /= sum
	}

	return scores, nil
}
