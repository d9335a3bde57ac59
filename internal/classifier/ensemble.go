package classifier

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Ensemble is an ordered set of classifiers sharing one label space.
// It is immutable after load; reloading builds a whole replacement.
// An empty ensemble is valid and leaves the pipeline in detection-only
// mode.
type Ensemble struct {
	members []Classifier
	files   []string
	classes []string
	stats   map[string]ClassStats
}

// NewEnsemble assembles an ensemble from already-built classifiers.
// LoadDir is the usual entry point; this exists for callers that
// construct members programmatically.
func NewEnsemble(members []Classifier, classes []string, stats map[string]ClassStats) *Ensemble {
	if stats == nil {
		stats = map[string]ClassStats{}
	}
	return &Ensemble{
		members: members,
		files:   make([]string, len(members)),
		classes: classes,
		stats:   stats,
	}
}

func (e *Ensemble) Len() int              { return len(e.members) }
func (e *Ensemble) Empty() bool           { return len(e.members) == 0 }
func (e *Ensemble) Members() []Classifier { return e.members }

// Files holds the artifact file names, index-aligned with Members.
func (e *Ensemble) Files() []string { return e.files }

// Classes is the shared, ordered label space.
func (e *Ensemble) Classes() []string { return e.classes }

// Class resolves a class index to its name.
func (e *Ensemble) Class(i int) string {
	if i < 0 || i >= len(e.classes) {
		return ""
	}
	return e.classes[i]
}

// Stats returns the training census for a class name.
func (e *Ensemble) Stats(class string) (ClassStats, bool) {
	s, ok := e.stats[class]
	return s, ok
}

// LoadDir loads every classifier artifact in dir (*.json, *.yaml,
// *.yml), sorted by file name so ensemble-local indices are stable
// across platforms. The first artifact establishes the label space;
// any later artifact that disagrees aborts the whole load. A directory
// with no artifacts yields a valid empty ensemble.
func LoadDir(dir string) (*Ensemble, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("classifier directory: %w", err)
	}

	var paths []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	ens := &Ensemble{stats: map[string]ClassStats{}}
	var first string

	for i, path := range paths {
		art, err := readArtifact(path)
		if err != nil {
			return nil, err
		}

		base := filepath.Base(path)
		if i == 0 {
			first = base
			ens.classes = art.ClassNames
			ens.stats = art.ClassStats
		} else {
			if !slices.Equal(ens.classes, art.ClassNames) {
				return nil, fmt.Errorf("%s vs %s: %w", first, base, ErrClassMismatch)
			}
			if !maps.Equal(ens.stats, art.ClassStats) {
				return nil, fmt.Errorf("%s vs %s: different class stats: %w", first, base, ErrClassMismatch)
			}
		}

		member, err := art.build(i)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", base, err)
		}
		ens.members = append(ens.members, member)
		ens.files = append(ens.files, base)
	}

	return ens, nil
}

// Store owns the live ensemble and swaps it wholesale on reload.
// Readers may hold the returned ensemble across a reload; they just
// keep seeing the generation they fetched.
type Store struct {
	dir string
	log *zap.Logger

	mu  sync.RWMutex
	cur *Ensemble
}

// NewStore creates a store for the given artifact directory. An empty
// dir means no classifiers are configured: the store permanently
// serves an empty ensemble.
func NewStore(dir string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		dir: dir,
		log: log,
		cur: &Ensemble{stats: map[string]ClassStats{}},
	}
}

// Dir is the backing artifact directory ("" when unconfigured).
func (s *Store) Dir() string { return s.dir }

// Current returns the live ensemble.
func (s *Store) Current() *Ensemble {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Reload rebuilds the ensemble from disk. On failure the previous
// ensemble stays in place and the error is returned.
func (s *Store) Reload() error {
	if s.dir == "" {
		return nil
	}

	ens, err := LoadDir(s.dir)
	if err != nil {
		return err
	}

	for i, m := range ens.Members() {
		s.log.Info("loaded classifier",
			zap.String("file", ens.Files()[i]),
			zap.String("kind", m.Kind().String()),
			zap.String("name", m.Name()),
			zap.Int("embedding_size", m.EmbeddingSize()),
		)
	}
	s.log.Info("classifier ensemble ready",
		zap.Int("classifiers", ens.Len()),
		zap.Int("classes", len(ens.Classes())),
	)

	s.mu.Lock()
	s.cur = ens
	s.mu.Unlock()

	return nil
}
