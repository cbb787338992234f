package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// BuildPrompt joins chunks with blank lines and wraps them with the question.
// An empty chunk list still produces a prompt with an empty context.
func BuildPrompt(query string, chunks []string) string {
	context := strings.Join(chunks, "\n\n")
	return fmt.Sprintf("Context:<br />%s<br /><br />Question: %s<br /><br />Answer:", context, query)
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// CountTokens estimates prompt size with the gpt-3.5-turbo encoding.
// The encoding is fetched once per process.
func CountTokens(text string) (int, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.EncodingForModel("gpt-3.5-turbo")
	})
	if encErr != nil {
		return 0, encErr
	}
	return len(enc.Encode(text, nil, nil)), nil
}
