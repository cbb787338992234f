package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every collection in the store",
	Long: `Destroys all stored chunks of every collection. The store must be
configured with store.allow_reset=true and the command needs --yes.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm the reset")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, _ []string) error {
	if !resetYes {
		return errors.New("refusing to reset without --yes")
	}
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Collection.Reset(cmd.Context()); err != nil {
		return err
	}
	cmd.Println("store reset")
	return nil
}
