package classifier

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

const knnJSON = `{
	"version": 1,
	"class_names": ["alice", "bob"],
	"class_stats": {"alice": {"embeddings": 4}, "bob": {"embeddings": 3}},
	"knn": {
		"neighbors": 3,
		"references": [
			{"class": 0, "vector": [1, 0, 0, 0]},
			{"class": 0, "vector": [0.9, 0.1, 0, 0]},
			{"class": 0, "vector": [0.95, 0, 0.05, 0]},
			{"class": 0, "vector": [1, 0.05, 0, 0]},
			{"class": 1, "vector": [0, 1, 0, 0]},
			{"class": 1, "vector": [0.1, 0.9, 0, 0]},
			{"class": 1, "vector": [0, 0.95, 0.05, 0]}
		]
	}
}`

const knnYAML = `version: 1
class_names: [alice, bob]
class_stats:
  alice: {embeddings: 4}
  bob: {embeddings: 3}
knn:
  neighbors: 3
  references:
    - {class: 0, vector: [1, 0, 0, 0]}
    - {class: 0, vector: [0.9, 0.1, 0, 0]}
    - {class: 0, vector: [0.95, 0, 0.05, 0]}
    - {class: 0, vector: [1, 0.05, 0, 0]}
    - {class: 1, vector: [0, 1, 0, 0]}
    - {class: 1, vector: [0.1, 0.9, 0, 0]}
    - {class: 1, vector: [0, 0.95, 0.05, 0]}
`

const svmJSON = `{
	"version": 1,
	"class_names": ["alice", "bob"],
	"class_stats": {"alice": {"embeddings": 4}, "bob": {"embeddings": 3}},
	"svm": {
		"weights": [[2, 0, 0, 0], [0, 2, 0, 0]],
		"bias": [0, 0]
	}
}`

const bareJSON = `{
	"version": 1,
	"class_names": ["alice", "bob"],
	"class_stats": {"alice": {"embeddings": 4}, "bob": {"embeddings": 3}}
}`

func TestReadArtifactEncodings(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		file string
		body string
	}{
		{"json", "people.json", knnJSON},
		{"yaml", "people.yaml", knnYAML},
		{"yml", "people.yml", knnYAML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art, err := readArtifact(writeFile(t, dir, tt.file, tt.body))
			if err != nil {
				t.Fatalf("readArtifact() error: %v", err)
			}
			if got, want := len(art.ClassNames), 2; got != want {
				t.Errorf("got %d class names; want %d", got, want)
			}
			if art.ClassNames[0] != "alice" || art.ClassNames[1] != "bob" {
				t.Errorf("got class names %v; want [alice bob]", art.ClassNames)
			}
			if art.KNN == nil {
				t.Fatal("knn section missing after decode")
			}
			if got, want := art.KNN.Neighbors, 3; got != want {
				t.Errorf("got neighbors %d; want %d", got, want)
			}
			if got, want := len(art.KNN.References), 7; got != want {
				t.Errorf("got %d references; want %d", got, want)
			}
			if got, want := art.ClassStats["alice"].Embeddings, 4; got != want {
				t.Errorf("got alice embeddings %d; want %d", got, want)
			}
		})
	}
}

func TestArtifactKinds(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		body     string
		ordinal  int
		wantKind Kind
		wantName string
		wantSize int
	}{
		{"svm", svmJSON, 0, KindSVM, "SVM", 4},
		{"knn", knnJSON, 1, KindKNN, "kNN", 4},
		{"bare model is unsupported", bareJSON, 2, KindUnsupported, "2", 512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art, err := readArtifact(writeFile(t, dir, "m.json", tt.body))
			if err != nil {
				t.Fatalf("readArtifact() error: %v", err)
			}
			m, err := art.build(tt.ordinal)
			if err != nil {
				t.Fatalf("build() error: %v", err)
			}
			if m.Kind() != tt.wantKind {
				t.Errorf("got kind %v; want %v", m.Kind(), tt.wantKind)
			}
			if m.Name() != tt.wantName {
				t.Errorf("got name %q; want %q", m.Name(), tt.wantName)
			}
			if m.EmbeddingSize() != tt.wantSize {
				t.Errorf("got embedding size %d; want %d", m.EmbeddingSize(), tt.wantSize)
			}
		})
	}
}

func TestReadArtifactRejectsGarbage(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		file string
		body string
	}{
		{"broken json", "m.json", `{"class_names": [`},
		{"broken yaml", "m.yaml", "class_names: [a\n"},
		{"no classes", "m.json", `{"version": 1}`},
		{"unknown extension", "m.pkl", "binary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := readArtifact(writeFile(t, dir, tt.file, tt.body)); err == nil {
				t.Error("readArtifact() accepted a malformed artifact")
			}
		})
	}
}
