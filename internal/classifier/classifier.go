// Package classifier loads pre-trained face classifiers and serves
// per-embedding probability distributions over a shared label space.
package classifier

import "fmt"

// Kind identifies the scoring algorithm a classifier artifact carries.
type Kind int

const (
	KindUnsupported Kind = iota
	KindSVM
	KindKNN
)

func (k Kind) String() string {
	switch k {
	case KindSVM:
		return "SVM"
	case KindKNN:
		return "kNN"
	default:
		return "unsupported"
	}
}

// defaultEmbeddingSize is assumed for artifacts whose model section is
// missing and whose input width therefore cannot be introspected.
const defaultEmbeddingSize = 512

// ClassStats is the per-class training census shared by every member
// of an ensemble. The embedding count drives the kNN scoring rule.
type ClassStats struct {
	Embeddings int `json:"embeddings" yaml:"embeddings"`
	Images     int `json:"images,omitempty" yaml:"images,omitempty"`
}

// Classifier scores one face embedding against the shared label space.
type Classifier interface {
	// Name is the display name: "SVM", "kNN", or the artifact's load
	// ordinal for unsupported kinds.
	Name() string
	Kind() Kind
	// EmbeddingSize is the input width the model was trained on.
	EmbeddingSize() int
	// Probabilities returns a distribution over the ensemble's classes.
	Probabilities(emb []float32) ([]float64, error)
}

// unsupported is a loadable artifact whose model section this build
// cannot score. It occupies an ensemble slot (and must pass the label
// space consistency check) but never contributes to fusion.
type unsupported struct {
	name string
}

func (u *unsupported) Name() string       { return u.name }
func (u *unsupported) Kind() Kind         { return KindUnsupported }
func (u *unsupported) EmbeddingSize() int { return defaultEmbeddingSize }

func (u *unsupported) Probabilities([]float32) ([]float64, error) {
	return nil, fmt.Errorf("classifier %s: %w", u.name, ErrUnsupportedKind)
}
