package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"llamarag/app/bootstrap"
	"llamarag/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ragd",
	Short: "Retrieval-augmented question answering over your documents",
	Long: `ragd chunks text documents into a vector collection and answers
questions with a llama.cpp server, grounding every prompt on the nearest chunks.

With the default memory backend the collection lives only inside one process;
use "ragd serve" (optionally with --inbox) or the postgres backend to share it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
}

// openApp loads configuration and bootstraps the agent for one command.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(ctx, cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
