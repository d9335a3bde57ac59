package classifier

import "errors"

var (
	// ErrClassMismatch means an artifact disagrees with the ensemble's
	// label space (class names or per-class stats). The whole load is
	// aborted; no partial ensemble is ever returned.
	ErrClassMismatch = errors.New("different class names in classifiers")

	// ErrBadArtifact means an artifact file could not be decoded or
	// failed structural validation.
	ErrBadArtifact = errors.New("malformed classifier artifact")

	// ErrShapeMismatch means an embedding's width does not match the
	// width a classifier was trained on. Recoverable per face.
	ErrShapeMismatch = errors.New("embedding size does not match classifier model")

	// ErrUnsupportedKind means the artifact carries a model this build
	// cannot score. The classifier still occupies an ensemble slot.
	ErrUnsupportedKind = errors.New("unsupported model type")
)
