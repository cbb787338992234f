package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"llamarag/types"
)

var (
	askK    int
	askJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the collection",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askK, "k", "k", 0, "number of chunks to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	question := strings.Join(args, " ")
	reply, err := app.Agent.Answer(cmd.Context(), question, askK)
	if err != nil {
		return err
	}

	if askJSON {
		data, err := json.MarshalIndent(types.SearchResponse{
			Answer:    reply.Answer,
			Sources:   reply.Sources,
			Timestamp: time.Now(),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(strings.TrimSpace(reply.Answer))
	if len(reply.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for _, src := range reply.Sources {
			cmd.Printf("  - %s\n", src)
		}
	}
	return nil
}
