package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var debugMode bool

var rootCmd = &cobra.Command{
	Use:   "facewatch",
	Short: "Watch camera streams and recognize faces",
	Long: `Facewatch runs face recognition over camera streams or recorded
frames. Detected faces are scored by an ensemble of classifiers, and
recognized people raise debounced notifications that can be printed
and journaled to PostgreSQL.

Face detection and embedding run in a separate inference sidecar.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Verbose logging and per-classifier score overlays")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
