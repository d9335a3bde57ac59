package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/imaging"
	"github.com/kozaktomas/facewatch/internal/infer"
	"github.com/kozaktomas/facewatch/internal/journal"
	"github.com/kozaktomas/facewatch/internal/logging"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List journaled detection events",
	Long: `List recent detection events from the PostgreSQL journal, newest
first. Requires FACEWATCH_DATABASE_URL.`,
	RunE: runEventsList,
}

var eventsSearchCmd = &cobra.Command{
	Use:   "search <image>",
	Short: "Find journaled events with a similar face",
	Long: `Embed a face image through the inference sidecar and list the
journaled events closest to it, nearest first.

Example:
  facewatch events search ./visitor.jpg --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runEventsSearch,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsSearchCmd)

	eventsCmd.Flags().Int("limit", 20, "Maximum number of events to list")
	eventsSearchCmd.Flags().Int("limit", 10, "Maximum number of matches")
}

func openJournal(cfg *config.Config) (*journal.Store, error) {
	log, err := logging.New(debugMode)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	store, err := journal.Open(&cfg.Database, logging.WithComponent(log, "journal"))
	if err != nil {
		return nil, fmt.Errorf("failed to open event journal: %w", err)
	}
	return store, nil
}

func runEventsList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	limit := mustGetInt(cmd, "limit")

	store, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Recent(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}

	if len(events) == 0 {
		fmt.Println("No events journaled yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tNAME\tCONFIDENCE\tLABELS")
	fmt.Fprintln(w, "----\t----\t----------\t------")

	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Name,
			e.Confidence*100,
			strings.Join(e.Labels, ","))
	}

	w.Flush()

	fmt.Printf("\nTotal: %d events\n", len(events))

	return nil
}

func runEventsSearch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	limit := mustGetInt(cmd, "limit")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	probe, err := imaging.EncodeJPEG(img)
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	ctx := context.Background()

	sidecar := infer.NewClient(cfg.Infer.URL, cfg.Infer.Timeout)
	embedding, err := sidecar.Embed(ctx, probe)
	if err != nil {
		return fmt.Errorf("failed to embed image: %w", err)
	}

	store, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	events, distances, err := store.Similar(ctx, embedding, limit)
	if err != nil {
		return fmt.Errorf("failed to search events: %w", err)
	}

	if len(events) == 0 {
		fmt.Println("No similar events found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DIST\tTIME\tNAME\tCONFIDENCE")
	fmt.Fprintln(w, "----\t----\t----\t----------")

	for i, e := range events {
		fmt.Fprintf(w, "%.3f\t%s\t%s\t%.1f%%\n",
			distances[i],
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Name,
			e.Confidence*100)
	}

	w.Flush()

	fmt.Printf("\nTotal: %d matches\n", len(events))

	return nil
}
