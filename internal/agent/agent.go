// File: internal/agent/agent.go

// Package agent runs the closed perception-action loop: capture the browser
// state, ask the decision service for the next move, execute it, repeat
// until the model produces a final answer or the turn budget runs out.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/decision"
)

// Config carries the loop parameters the agent and dispatcher need.
type Config struct {
	MaxTurns          int
	SearchURL         string
	NavigationTimeout time.Duration
	LoadWait          time.Duration
	SettleDelay       time.Duration
	WaitDuration      time.Duration
	ViewportWidth     int
	ViewportHeight    int
}

// ConfigFrom flattens the application config into the agent's view of it.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxTurns:          cfg.Agent.MaxTurns,
		SearchURL:         cfg.Agent.SearchURL,
		NavigationTimeout: cfg.Agent.NavigationTimeout,
		LoadWait:          cfg.Agent.LoadWait,
		SettleDelay:       cfg.Agent.SettleDelay,
		WaitDuration:      cfg.Agent.WaitDuration,
		ViewportWidth:     cfg.Browser.Width,
		ViewportHeight:    cfg.Browser.Height,
	}
}

// Result is the outcome of one completed run. Data holds the model's final
// answer, or the exhaustion notice when the turn budget ran out.
type Result struct {
	Data        string          `json:"data"`
	SessionID   string          `json:"session_id"`
	ArtifactDir string          `json:"artifact_dir"`
	Progress    []ProgressEvent `json:"progress"`
}

// Agent binds one browser session, one decision client, and one artifact
// session into a single task run. An Agent is single-use: Run once, then
// Teardown.
type Agent struct {
	browser    Browser
	client     decision.Client
	session    *Session
	dispatcher *Dispatcher
	cfg        Config
	logger     *zap.Logger

	teardown sync.Once
}

// New assembles an agent around an already-open browser session.
func New(browser Browser, client decision.Client, session *Session, cfg Config, logger *zap.Logger) *Agent {
	logger = logger.Named("agent").With(zap.String("session_id", session.ID()))
	return &Agent{
		browser:    browser,
		client:     client,
		session:    session,
		dispatcher: NewDispatcher(browser, cfg, logger),
		cfg:        cfg,
		logger:     logger,
	}
}

// Session exposes the artifact session, which callers poll for progress.
func (a *Agent) Session() *Session { return a.session }

// Progress returns the timeline so far. Safe to call while Run is active.
func (a *Agent) Progress() []ProgressEvent { return a.session.Progress() }

// Run drives the loop to completion. A nil error with an exhaustion notice
// in Result.Data means the turn budget ran out before the model finished;
// callers treat that as a successful, if inconclusive, run. Errors are
// reserved for infrastructure failures (browser gone, API unreachable) and
// for ctx cancellation.
func (a *Agent) Run(ctx context.Context, task, startURL string) (*Result, error) {
	a.logger.Info("Starting task.", zap.String("task", task), zap.String("start_url", startURL))
	a.session.AddProgress(CategoryInfo, fmt.Sprintf("Task started: %s", task))

	contents, err := a.seed(ctx, task, startURL)
	if err != nil {
		a.session.AddProgress(CategoryError, err.Error())
		return nil, err
	}

	for turn := 1; turn <= a.cfg.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			a.session.AddProgress(CategoryInfo, "Task cancelled.")
			return nil, err
		}

		a.session.AddProgress(CategoryTurn, fmt.Sprintf("Turn %d/%d", turn, a.cfg.MaxTurns))

		modelTurn, err := a.client.GenerateTurn(ctx, contents)
		if err != nil {
			a.session.AddProgress(CategoryError, err.Error())
			return nil, err
		}
		contents = append(contents, modelTurn)

		calls := decision.FunctionCalls(modelTurn)
		if len(calls) == 0 {
			answer := decision.JoinText(modelTurn)
			a.logger.Info("Task complete.", zap.Int("turns", turn))
			a.session.AddProgress(CategoryInfo, "Task complete.")
			return a.result(ctx, answer)
		}

		if thought := decision.JoinText(modelTurn); thought != "" {
			a.logger.Debug("Model reasoning.", zap.String("text", thought))
		}

		responses, err := a.executeTurn(ctx, calls)
		if err != nil {
			a.session.AddProgress(CategoryError, err.Error())
			return nil, err
		}
		contents = append(contents, &genai.Content{Role: "user", Parts: responses})
	}

	a.logger.Warn("Turn budget exhausted.", zap.Int("max_turns", a.cfg.MaxTurns))
	a.session.AddProgress(CategoryInfo, "Turn budget exhausted.")
	notice := fmt.Sprintf("Task reached maximum turns (%d). Please check browser state.", a.cfg.MaxTurns)
	return a.result(ctx, notice)
}

// seed performs the initial navigation and builds the opening user turn:
// the task text plus a first screenshot so the model sees where it starts.
func (a *Agent) seed(ctx context.Context, task, startURL string) ([]*genai.Content, error) {
	if startURL == "" {
		startURL = a.cfg.SearchURL
	}

	navCtx, cancel := context.WithTimeout(ctx, a.cfg.NavigationTimeout)
	err := a.browser.Navigate(navCtx, startURL)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("initial navigation to %s failed: %w", startURL, err)
	}
	if err := a.browser.WaitReady(ctx, a.cfg.LoadWait); err != nil {
		a.logger.Debug("Initial readiness wait did not complete.", zap.Error(err))
	}

	shot, err := a.browser.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial screenshot failed: %w", err)
	}
	if _, err := a.session.SaveSnapshot(shot, "initial"); err != nil {
		a.logger.Warn("Failed to persist initial screenshot.", zap.Error(err))
	}

	a.session.AddProgress(CategoryInfo, fmt.Sprintf("Opened %s", startURL))

	return []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: task},
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: shot}},
			},
		},
	}, nil
}

// executeTurn runs every action the model requested this turn, then captures
// one shared observation (screenshot and URL) attached to each function
// response. Action failures are reported back to the model as text, not
// raised; a failed screenshot afterwards is fatal because the model would
// be flying blind.
func (a *Agent) executeTurn(ctx context.Context, calls []*genai.FunctionCall) ([]*genai.Part, error) {
	outcomes := make([]Outcome, 0, len(calls))
	for _, call := range calls {
		a.session.AddProgress(CategoryAction, "Action: "+call.Name)
		outcomes = append(outcomes, a.dispatcher.Execute(ctx, call))
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	shot, err := a.browser.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("post-action screenshot failed: %w", err)
	}
	if _, err := a.session.SaveSnapshot(shot, ""); err != nil {
		a.logger.Warn("Failed to persist screenshot.", zap.Error(err))
	}

	url, err := a.browser.Location(ctx)
	if err != nil {
		a.logger.Warn("Failed to read current URL.", zap.Error(err))
		url = ""
	}

	parts := make([]*genai.Part, 0, len(calls))
	for _, outcome := range outcomes {
		response := map[string]any{"url": url}
		if outcome.Err != nil {
			response["error"] = outcome.Err.Error()
		}
		if outcome.SafetyAck != nil {
			response["safety_acknowledgement"] = outcome.SafetyAck
		}
		parts = append(parts, &genai.Part{
			FunctionResponse: &genai.FunctionResponse{
				Name:     outcome.Name,
				Response: response,
				Parts: []*genai.FunctionResponsePart{
					{InlineData: &genai.FunctionResponseBlob{MIMEType: "image/png", Data: shot}},
				},
			},
		})
	}
	return parts, nil
}

// result captures the final screenshot and packages the run outcome. The
// final capture is best-effort: the answer already exists.
func (a *Agent) result(ctx context.Context, data string) (*Result, error) {
	if shot, err := a.browser.Screenshot(ctx); err == nil {
		if _, err := a.session.SaveSnapshot(shot, "final"); err != nil {
			a.logger.Warn("Failed to persist final screenshot.", zap.Error(err))
		}
	} else {
		a.logger.Warn("Final screenshot failed.", zap.Error(err))
	}

	return &Result{
		Data:        strings.TrimSpace(data),
		SessionID:   a.session.ID(),
		ArtifactDir: a.session.Dir(),
		Progress:    a.session.Progress(),
	}, nil
}

// Teardown closes the browser session. Idempotent; uses its own deadline so
// a cancelled run context cannot leave the tab open.
func (a *Agent) Teardown() {
	a.teardown.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.browser.Close(ctx); err != nil {
			a.logger.Warn("Browser session close failed.", zap.Error(err))
		}
	})
}
