package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facewatch/internal/classifier"
	"github.com/kozaktomas/facewatch/internal/config"
)

var classifiersCmd = &cobra.Command{
	Use:   "classifiers [directory]",
	Short: "List classifier artifacts and their shared label space",
	Long: `Load the classifier artifacts from a directory and print what the
watcher would run with: every artifact with its kind and embedding
width, plus the per-class training census.

The directory defaults to FACEWATCH_CLASSIFIER_DIR.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassifiersList,
}

func init() {
	rootCmd.AddCommand(classifiersCmd)
}

func runClassifiersList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	dir := cfg.Watch.ClassifierDir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no classifier directory (pass one or set FACEWATCH_CLASSIFIER_DIR)")
	}

	ens, err := classifier.LoadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to load classifiers: %w", err)
	}

	if ens.Empty() {
		fmt.Println("No classifier artifacts found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tKIND\tEMBEDDING\tCLASSES")
	fmt.Fprintln(w, "----\t----\t---------\t-------")

	for i, m := range ens.Members() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", ens.Files()[i], m.Kind(), m.EmbeddingSize(), len(ens.Classes()))
	}

	w.Flush()

	fmt.Println()

	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CLASS\tEMBEDDINGS\tIMAGES")
	fmt.Fprintln(w, "-----\t----------\t------")

	for _, class := range ens.Classes() {
		stats, _ := ens.Stats(class)
		fmt.Fprintf(w, "%s\t%d\t%d\n", class, stats.Embeddings, stats.Images)
	}

	w.Flush()

	fmt.Printf("\nTotal: %d classifiers, %d classes\n", ens.Len(), len(ens.Classes()))

	return nil
}
