package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Console prints notifications as a framed banner, sized to the
// longest line:
//
//	==============================
//	Jana Novak has been detected
//	Position: Engineer
//	Company: ACME
//	[IMAGE]
//	==============================
type Console struct {
	out io.Writer
}

// NewConsole creates a console notifier writing to w; nil means
// stdout.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{out: w}
}

func (c *Console) Notify(_ context.Context, event Event) error {
	lines := []string{fmt.Sprintf("%s has been detected", event.Name)}
	if event.Position != "" {
		lines = append(lines, fmt.Sprintf("Position: %s", event.Position))
	}
	if event.Company != "" {
		lines = append(lines, fmt.Sprintf("Company: %s", event.Company))
	}
	if event.Snapshot != nil {
		lines = append(lines, "[IMAGE]")
	}

	width := 0
	for _, line := range lines {
		if len(line) > width {
			width = len(line)
		}
	}

	sep := strings.Repeat("=", width)
	if _, err := fmt.Fprintf(c.out, "%s\n%s\n%s\n", sep, strings.Join(lines, "\n"), sep); err != nil {
		return fmt.Errorf("writing notification: %w", err)
	}
	return nil
}
