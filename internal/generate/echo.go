package generate

import (
	"context"
	"strings"
)

const defaultEchoText = "Relevant filings discuss the figures and line items named in the query."

// Echo answers every prompt with a fixed elaboration. It never touches the
// network and is used for dry runs.
type Echo struct {
	Text string
}

func (e Echo) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(e.Text) == "" {
		return defaultEchoText, nil
	}
	return e.Text, nil
}
