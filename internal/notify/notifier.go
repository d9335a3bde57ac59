package notify

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/google/uuid"
)

// Event is one fired notification: somebody was recognized and stayed
// on screen long enough to count as a real appearance.
type Event struct {
	ID         uuid.UUID
	Name       string
	Position   string
	Company    string
	Confidence float64
	// Labels are all class names the window was ever matched to;
	// usually just the one name, more when classifiers wavered.
	Labels []string
	// Snapshot is the best-confidence face crop of the episode.
	Snapshot image.Image
	// Embedding is the face embedding behind the best sighting.
	Embedding []float32
	At        time.Time
}

// Notifier delivers a notification event to one sink.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Multi fans one event out to every configured sink. All sinks are
// attempted; their errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
