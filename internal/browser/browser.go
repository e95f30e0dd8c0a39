// File: internal/browser/browser.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
)

// DefaultAllocatorOptions builds the exec allocator options for the Chrome
// process from configuration. Defaults lean toward container stability.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	if cfg.Width > 0 && cfg.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Width, cfg.Height))
	}

	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	return opts
}

// Manager owns the Chrome process (via the exec allocator) and creates
// isolated tab sessions on it. Each agent run gets its own Session; the
// Manager only shuts the process down once every session has closed.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager prepares the allocator. The browser process itself launches
// lazily with the first session.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(cfg)...)

	mode := "headed"
	if cfg.Headless {
		mode = "headless"
	}
	log := logger.Named("browser_manager")
	log.Info("Browser manager created.",
		zap.String("mode", mode),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height))

	return &Manager{
		cfg:         cfg,
		logger:      log,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		sessions:    make(map[string]*Session),
	}
}

// NewSession opens a new tab and returns a Session bound to it.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)

	// Materialize the target so failures surface here, not on first use.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	session := newSession(tabCtx, tabCancel, m.logger)

	m.wg.Add(1)
	session.onClose = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, session.ID())
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", session.ID()))
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Info("New browser session created.", zap.String("session_id", session.ID()))
	return session, nil
}

// Shutdown closes all sessions and terminates the browser process. It waits
// for session teardown up to the context deadline before cutting the
// allocator regardless.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		go func(s *Session) {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error closing session during shutdown.",
					zap.String("session_id", s.ID()), zap.Error(err))
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All browser sessions closed.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close; terminating browser process anyway.", zap.Error(ctx.Err()))
	}

	m.allocCancel()
	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
