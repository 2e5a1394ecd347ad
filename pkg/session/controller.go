// ABOUTME: Single live session controller
// ABOUTME: Fully stops the previous session before starting the next
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Controller owns at most one live Session
type Controller struct {
	cfg    Config
	logger *zap.SugaredLogger

	mu      sync.Mutex
	current *Session
}

// NewController creates a controller building sessions from cfg
func NewController(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Controller{cfg: cfg, logger: cfg.Logger}
}

// Prepare stops any live session and prepares a new one. Call it from the
// user action that starts playback.
func (c *Controller) Prepare() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	s := New(c.cfg)
	if err := s.Prepare(); err != nil {
		return nil, err
	}
	c.current = s
	return s, nil
}

// Start prepares a new session (stopping the previous one) and connects it
func (c *Controller) Start(ctx context.Context, endpoint string) (*Session, error) {
	s, err := c.Prepare()
	if err != nil {
		return nil, err
	}

	if err := s.Connect(ctx, endpoint); err != nil {
		_ = s.Stop()
		return nil, err
	}
	return s, nil
}

// Current returns the live session, or nil
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Stop stops the live session
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() error {
	if c.current == nil {
		return nil
	}
	prev := c.current
	c.current = nil

	if err := prev.Stop(); err != nil {
		c.logger.Warnw("previous session did not stop cleanly", "session_id", prev.ID(), "error", err)
		return err
	}
	return nil
}

// Clear resets the live session's history and segments
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Clear()
	}
}
