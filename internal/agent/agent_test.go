// File: internal/agent/agent_test.go
package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"

	"github.com/xkilldash9x/webpilot/internal/config"
)

// scriptedClient replays a fixed sequence of model turns and records the
// conversation it was handed on each call.
type scriptedClient struct {
	turns    []*genai.Content
	err      error
	received [][]*genai.Content
}

func (c *scriptedClient) GenerateTurn(_ context.Context, contents []*genai.Content) (*genai.Content, error) {
	snapshot := make([]*genai.Content, len(contents))
	copy(snapshot, contents)
	c.received = append(c.received, snapshot)

	if c.err != nil {
		return nil, c.err
	}
	if len(c.turns) == 0 {
		return nil, errors.New("script exhausted")
	}
	turn := c.turns[0]
	c.turns = c.turns[1:]
	return turn, nil
}

// loopingClient always asks for one more action.
type loopingClient struct{ calls int }

func (c *loopingClient) GenerateTurn(context.Context, []*genai.Content) (*genai.Content, error) {
	c.calls++
	return &genai.Content{
		Role: "model",
		Parts: []*genai.Part{
			{FunctionCall: &genai.FunctionCall{Name: "click_at", Args: map[string]any{"x": 1.0, "y": 1.0}}},
		},
	}, nil
}

func actionTurn(name string, args map[string]any) *genai.Content {
	return &genai.Content{
		Role:  "model",
		Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: name, Args: args}}},
	}
}

func textTurn(text string) *genai.Content {
	return &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}}
}

func newTestAgent(t *testing.T, fb *fakeBrowser, client interface {
	GenerateTurn(context.Context, []*genai.Content) (*genai.Content, error)
}, cfg Config) *Agent {
	t.Helper()
	session, err := NewSession(t.TempDir())
	require.NoError(t, err)
	return New(fb, client, session, cfg, zaptest.NewLogger(t))
}

func TestRun_CompletesWithFinalAnswer(t *testing.T) {
	fb := newFakeBrowser()
	client := &scriptedClient{turns: []*genai.Content{
		actionTurn("navigate", map[string]any{"url": "https://example.com/results"}),
		textTurn("The answer is 42."),
	}}
	a := newTestAgent(t, fb, client, testConfig())

	res, err := a.Run(context.Background(), "find the answer", "https://example.com")
	require.NoError(t, err)

	assert.Equal(t, "The answer is 42.", res.Data)
	assert.Equal(t, a.Session().ID(), res.SessionID)
	assert.Equal(t, a.Session().Dir(), res.ArtifactDir)

	// initial + one post-action + final capture.
	assert.Equal(t, 3, a.Session().SnapshotCount())

	calls := fb.Calls()
	assert.Contains(t, calls, "navigate https://example.com")
	assert.Contains(t, calls, "navigate https://example.com/results")

	var actions, turns []string
	for _, e := range res.Progress {
		switch e.Category {
		case CategoryAction:
			actions = append(actions, e.Message)
		case CategoryTurn:
			turns = append(turns, e.Message)
		}
	}
	assert.Equal(t, []string{"Action: navigate"}, actions)
	assert.Equal(t, []string{"Turn 1/30", "Turn 2/30"}, turns, "one turn event per model exchange")
}

func TestRun_FeedsObservationsBack(t *testing.T) {
	fb := newFakeBrowser()
	client := &scriptedClient{turns: []*genai.Content{
		actionTurn("click_at", map[string]any{"x": 10.0, "y": 10.0}),
		textTurn("done"),
	}}
	a := newTestAgent(t, fb, client, testConfig())

	_, err := a.Run(context.Background(), "click the thing", "")
	require.NoError(t, err)

	require.Len(t, client.received, 2)

	// The first request carries the task and the initial screenshot.
	first := client.received[0]
	require.Len(t, first, 1)
	assert.Equal(t, "click the thing", first[0].Parts[0].Text)
	require.NotNil(t, first[0].Parts[1].InlineData)
	assert.Equal(t, "image/png", first[0].Parts[1].InlineData.MIMEType)

	// The second request appends the model turn and the function response
	// with the shared observation.
	second := client.received[1]
	require.Len(t, second, 3)
	resp := second[2].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "click_at", resp.Name)
	assert.Equal(t, "https://example.com/page", resp.Response["url"])
	require.Len(t, resp.Parts, 1)
	assert.Equal(t, []byte("png-bytes"), resp.Parts[0].InlineData.Data)
}

func TestRun_EmptyStartURLUsesSearchPage(t *testing.T) {
	fb := newFakeBrowser()
	client := &scriptedClient{turns: []*genai.Content{textTurn("nothing to do")}}
	a := newTestAgent(t, fb, client, testConfig())

	_, err := a.Run(context.Background(), "idle task", "")
	require.NoError(t, err)
	assert.Contains(t, fb.Calls(), "navigate https://www.google.com")
}

func TestRun_TurnBudgetExhaustion(t *testing.T) {
	fb := newFakeBrowser()
	client := &loopingClient{}
	cfg := testConfig()
	cfg.MaxTurns = 3
	a := newTestAgent(t, fb, client, cfg)

	res, err := a.Run(context.Background(), "never finishes", "https://example.com")
	require.NoError(t, err, "exhaustion is not an error")

	assert.Equal(t, "Task reached maximum turns (3). Please check browser state.", res.Data)
	assert.Equal(t, 3, client.calls)
	// initial + one per turn + final capture.
	assert.Equal(t, 5, a.Session().SnapshotCount())
}

func TestRun_ActionFailureIsReportedNotFatal(t *testing.T) {
	fb := newFakeBrowser()
	fb.failNavigate = errors.New("net::ERR_CONNECTION_REFUSED")
	client := &scriptedClient{turns: []*genai.Content{textTurn("unreachable")}}
	a := newTestAgent(t, fb, client, testConfig())

	// Initial navigation failing is fatal: there is no state to observe.
	_, err := a.Run(context.Background(), "task", "https://down.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial navigation")
}

func TestRun_MidLoopActionErrorFedToModel(t *testing.T) {
	fb := newFakeBrowser()
	client := &scriptedClient{turns: []*genai.Content{
		actionTurn("navigate", map[string]any{}), // missing url argument
		textTurn("recovered"),
	}}
	a := newTestAgent(t, fb, client, testConfig())

	res, err := a.Run(context.Background(), "task", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Data)

	resp := client.received[1][2].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Contains(t, resp.Response["error"], "missing required argument")
}

func TestRun_DecisionServiceFailureIsFatal(t *testing.T) {
	fb := newFakeBrowser()
	client := &scriptedClient{err: errors.New("429 resource exhausted")}
	a := newTestAgent(t, fb, client, testConfig())

	_, err := a.Run(context.Background(), "task", "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestRun_CancelledContext(t *testing.T) {
	fb := newFakeBrowser()
	client := &loopingClient{}
	a := newTestAgent(t, fb, client, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Run(ctx, "task", "https://example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTeardown_Idempotent(t *testing.T) {
	fb := newFakeBrowser()
	client := &scriptedClient{turns: []*genai.Content{textTurn("ok")}}
	a := newTestAgent(t, fb, client, testConfig())

	a.Teardown()
	a.Teardown()

	closes := 0
	for _, c := range fb.Calls() {
		if c == "close" {
			closes++
		}
	}
	assert.Equal(t, 1, closes)
}

func TestConfigFrom(t *testing.T) {
	// Keep the flattening honest: a mapping bug here silently skews every
	// coordinate the dispatcher produces.
	full := &config.Config{}
	full.Browser.Width = 1440
	full.Browser.Height = 900
	full.Agent.MaxTurns = 30
	full.Agent.SearchURL = "https://www.google.com"

	cfg := ConfigFrom(full)
	assert.Equal(t, 1440, cfg.ViewportWidth)
	assert.Equal(t, 900, cfg.ViewportHeight)
	assert.Equal(t, 30, cfg.MaxTurns)
	assert.Equal(t, "https://www.google.com", cfg.SearchURL)
}
