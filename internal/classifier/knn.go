package classifier

import (
	"fmt"
	"sort"

	"github.com/coder/hnsw"
)

// hnswMaxNeighbors is the M parameter of the reference graph.
const hnswMaxNeighbors = 16

// Neighbor is one reference embedding returned from a similarity
// query, in ascending distance order.
type Neighbor struct {
	Class    int
	Distance float64
}

// NeighborSearcher is implemented by classifiers that can enumerate
// their nearest training references.
type NeighborSearcher interface {
	Neighbors(emb []float32, n int) ([]Neighbor, error)
}

// KNN scores embeddings by voting among the k nearest training
// references. References live in an HNSW graph keyed by their load
// ordinal; class membership is kept alongside for vote counting.
type KNN struct {
	graph      *hnsw.Graph[int]
	vectors    [][]float32
	refClasses []int
	k          int
	dim        int
	classes    int
}

func newKNN(sec *knnSection, classes int) (*KNN, error) {
	if sec.Neighbors < 1 {
		return nil, fmt.Errorf("knn: neighbors must be at least 1, got %d: %w", sec.Neighbors, ErrBadArtifact)
	}
	if len(sec.References) == 0 {
		return nil, fmt.Errorf("knn: no reference embeddings: %w", ErrBadArtifact)
	}

	dim := len(sec.References[0].Vector)
	if dim == 0 {
		return nil, fmt.Errorf("knn: empty reference vector: %w", ErrBadArtifact)
	}

	g := hnsw.NewGraph[int]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance

	model := &KNN{
		graph:      g,
		vectors:    make([][]float32, 0, len(sec.References)),
		refClasses: make([]int, 0, len(sec.References)),
		k:          sec.Neighbors,
		dim:        dim,
		classes:    classes,
	}

	for i, ref := range sec.References {
		if len(ref.Vector) != dim {
			return nil, fmt.Errorf("knn: reference %d has %d features, want %d: %w", i, len(ref.Vector), dim, ErrBadArtifact)
		}
		if ref.Class < 0 || ref.Class >= classes {
			return nil, fmt.Errorf("knn: reference %d names class %d of %d: %w", i, ref.Class, classes, ErrBadArtifact)
		}
		g.Add(hnsw.MakeNode(i, ref.Vector))
		model.vectors = append(model.vectors, ref.Vector)
		model.refClasses = append(model.refClasses, ref.Class)
	}

	return model, nil
}

func (k *KNN) Name() string       { return "kNN" }
func (k *KNN) Kind() Kind         { return KindKNN }
func (k *KNN) EmbeddingSize() int { return k.dim }

// K is the neighbor count the model was trained with.
func (k *KNN) K() int { return k.k }

// References is the number of indexed training embeddings.
func (k *KNN) References() int { return len(k.refClasses) }

// Probabilities votes among the k nearest references; each class's
// probability is its share of the k votes.
func (k *KNN) Probabilities(emb []float32) ([]float64, error) {
	if len(emb) != k.dim {
		return nil, fmt.Errorf("got %d features, model fit on %d: %w", len(emb), k.dim, ErrShapeMismatch)
	}

	nearest, err := k.Neighbors(emb, k.k)
	if err != nil {
		return nil, err
	}

	probs := make([]float64, k.classes)
	for _, n := range nearest {
		probs[n.Class]++
	}
	for c := range probs {
		probs[c] /= float64(k.k)
	}

	return probs, nil
}

// Neighbors returns the n nearest references sorted by ascending
// distance. Distances are recomputed exactly from the stored vectors
// rather than trusted from graph traversal order.
func (k *KNN) Neighbors(emb []float32, n int) ([]Neighbor, error) {
	if len(emb) != k.dim {
		return nil, fmt.Errorf("got %d features, model fit on %d: %w", len(emb), k.dim, ErrShapeMismatch)
	}
	if n < 1 {
		return nil, nil
	}
	if n > len(k.refClasses) {
		n = len(k.refClasses)
	}

	nodes := k.graph.Search(emb, n)

	out := make([]Neighbor, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, Neighbor{
			Class:    k.refClasses[node.Key],
			Distance: EuclideanDistance(emb, k.vectors[node.Key]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })

	return out, nil
}
