package main

import (
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show collection name and chunk count",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, _ []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	info, err := app.Collection.Info(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Printf("collection: %s\nchunks:     %d\n", info.Name, info.Count)
	return nil
}
