// Package domguard keeps the page body from growing while the application
// module takes over rendering.
package domguard

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webboot/internal/host"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/monitoring"
)

// ErrNoBody is returned when the document has no body to guard.
var ErrNoBody = errors.New("document has no body")

// Guard activates body guards on a document.
type Guard struct {
	doc     host.Document
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a guard for doc.
func New(doc host.Document, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{doc: doc, logger: logger.Named("domguard")}
}

// WithMetrics attaches metrics.
func (g *Guard) WithMetrics(m *monitoring.Metrics) *Guard {
	g.metrics = m
	return g
}

// Activate records the body's current child count and starts reverting
// child additions beyond it.
func (g *Guard) Activate() (*Handle, error) {
	body, ok := g.doc.Body()
	if !ok {
		return nil, ErrNoBody
	}

	h := &Handle{
		body:     body,
		baseline: body.ChildCount(),
		logger:   g.logger,
		metrics:  g.metrics,
	}
	h.observer = g.doc.NewMutationObserver(h.onMutations)
	if err := h.observer.Observe(body, host.ObserveOptions{ChildList: true}); err != nil {
		return nil, fmt.Errorf("failed to observe body: %w", err)
	}

	g.logger.Debug("body guard active", zap.Int("baseline", h.baseline))
	return h, nil
}

// Handle is a live body guard.
type Handle struct {
	body     host.Element
	baseline int
	observer host.MutationObserver
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	released atomic.Bool
	once     sync.Once
}

// Baseline returns the child count recorded at activation.
func (h *Handle) Baseline() int {
	return h.baseline
}

// Active reports whether the guard is still enforcing.
func (h *Handle) Active() bool {
	return !h.released.Load()
}

// Release stops enforcement. Safe to call repeatedly, concurrently, and from
// inside a mutation callback.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.released.Store(true)
		h.observer.Disconnect()
		h.logger.Debug("body guard released")
	})
}

func (h *Handle) onMutations(records []host.MutationRecord) {
	for _, rec := range records {
		if h.released.Load() {
			return
		}
		if rec.Type != host.MutationChildList {
			continue
		}
		h.trim()
	}
}

// trim removes trailing children until the body is back at its baseline.
func (h *Handle) trim() {
	removed := 0
	for h.body.ChildCount() > h.baseline {
		last, ok := h.body.LastChild()
		if !ok {
			break
		}
		if err := h.body.RemoveChild(last); err != nil {
			h.logger.Warn("failed to remove foreign body child", zap.Error(err))
			break
		}
		removed++
	}
	if removed > 0 {
		h.logger.Debug("reverted body children", zap.Int("removed", removed))
		h.metrics.RecordDOMGuardRevert(removed)
	}
}
