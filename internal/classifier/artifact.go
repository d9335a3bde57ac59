package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// artifact is the serialized form of one trained classifier. The same
// envelope is written in two legacy text encodings, JSON and YAML;
// which one only changes the decoder, never the meaning. Exactly one
// of the model sections is expected; an artifact with neither loads as
// an unsupported kind.
type artifact struct {
	Version    int                   `json:"version" yaml:"version"`
	ClassNames []string              `json:"class_names" yaml:"class_names"`
	ClassStats map[string]ClassStats `json:"class_stats" yaml:"class_stats"`
	SVM        *svmSection           `json:"svm,omitempty" yaml:"svm,omitempty"`
	KNN        *knnSection           `json:"knn,omitempty" yaml:"knn,omitempty"`
}

type svmSection struct {
	// Weights holds one row per class, each as wide as the embedding.
	Weights [][]float64 `json:"weights" yaml:"weights"`
	Bias    []float64   `json:"bias" yaml:"bias"`
}

type knnSection struct {
	// Neighbors is the k the model was trained with.
	Neighbors  int         `json:"neighbors" yaml:"neighbors"`
	References []reference `json:"references" yaml:"references"`
}

type reference struct {
	// Class indexes into the artifact's class_names.
	Class  int       `json:"class" yaml:"class"`
	Vector []float32 `json:"vector" yaml:"vector"`
}

// readArtifact decodes one artifact file, picking the decoder from the
// file extension.
func readArtifact(path string) (*artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var art artifact
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &art); err != nil {
			return nil, fmt.Errorf("decoding %s: %v: %w", filepath.Base(path), err, ErrBadArtifact)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &art); err != nil {
			return nil, fmt.Errorf("decoding %s: %v: %w", filepath.Base(path), err, ErrBadArtifact)
		}
	default:
		return nil, fmt.Errorf("%s: unknown artifact extension: %w", filepath.Base(path), ErrBadArtifact)
	}

	if len(art.ClassNames) == 0 {
		return nil, fmt.Errorf("%s: no class names: %w", filepath.Base(path), ErrBadArtifact)
	}

	return &art, nil
}

// build turns a decoded artifact into a scorable classifier. The
// ordinal is the artifact's position in the sorted load order and
// names otherwise anonymous models.
func (a *artifact) build(ordinal int) (Classifier, error) {
	switch {
	case a.SVM != nil:
		return newSVM(a.SVM, len(a.ClassNames))
	case a.KNN != nil:
		return newKNN(a.KNN, len(a.ClassNames))
	default:
		return &unsupported{name: strconv.Itoa(ordinal)}, nil
	}
}
