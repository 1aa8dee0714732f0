package orchestrator

import (
	"sync"

	"go.uber.org/zap"
)

// PauseController lets a caller hold back new dispatches. Attempts already
// running are not affected.
type PauseController struct {
	mu     sync.Mutex
	paused bool
	wake   chan struct{}
	logger *zap.Logger
}

// NewPauseController creates a new PauseController.
func NewPauseController(logger *zap.Logger) *PauseController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PauseController{
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Pause stops new dispatches.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.logger.Info("dispatching paused")
		p.signal()
	}
}

// Resume re-enables dispatching.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		p.logger.Info("dispatching resumed")
		p.signal()
	}
}

// IsPaused returns whether dispatching is currently paused.
func (p *PauseController) IsPaused() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Changed fires after every Pause or Resume that changed the state.
func (p *PauseController) Changed() <-chan struct{} {
	if p == nil {
		return nil
	}
	return p.wake
}

// signal never blocks; one pending notification is enough. Caller holds mu.
func (p *PauseController) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}
