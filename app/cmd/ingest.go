package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Chunk and store text files in the collection",
	Long: `Reads each file, splits it into chunks and stores them with the file
path as their source. Ingesting the same path again replaces its chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	for _, path := range args {
		n, err := app.Agent.ProcessAndStore(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		cmd.Printf("%s: %d chunks\n", path, n)
	}
	return nil
}
