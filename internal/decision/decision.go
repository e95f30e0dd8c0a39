// File: internal/decision/decision.go

// Package decision is the boundary to the external vision-action model. The
// model receives the full conversation so far (task text, screenshots, and
// prior action outcomes) and answers with either further browser actions or
// a final textual answer.
package decision

import (
	"context"

	"google.golang.org/genai"
)

// Client is one request/response exchange with the decision service.
// Implementations must treat contents as read-only; the caller owns the
// append-only conversation log.
type Client interface {
	// GenerateTurn sends the accumulated conversation and returns the
	// model's next turn.
	GenerateTurn(ctx context.Context, contents []*genai.Content) (*genai.Content, error)
}

// FunctionCalls extracts the action requests from a model turn, in order.
func FunctionCalls(content *genai.Content) []*genai.FunctionCall {
	if content == nil {
		return nil
	}
	var calls []*genai.FunctionCall
	for _, part := range content.Parts {
		if part != nil && part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
	}
	return calls
}

// JoinText concatenates the text fragments of a model turn with single
// spaces, mirroring how a final answer is assembled.
func JoinText(content *genai.Content) string {
	if content == nil {
		return ""
	}
	out := ""
	for _, part := range content.Parts {
		if part == nil || part.Text == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += part.Text
	}
	return out
}
