package widget

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-checkout/internal/domain"
	"github.com/robertarktes/tour-checkout/internal/observability"
)

const settledRetention = 10 * time.Minute

type State int

const (
	StateIdle State = iota
	StateAwaitingWidget
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingWidget:
		return "awaiting_widget"
	case StateSucceeded:
		return "success"
	case StateFailed:
		return "failure"
	default:
		return "idle"
	}
}

type session struct {
	opts   domain.WidgetOptions
	state  State
	events chan domain.WidgetEvent
}

type settled struct {
	state State
	at    time.Time
}

// Hub holds the open widget sessions, keyed by gateway order id. Each
// session moves Idle -> AwaitingWidget -> Succeeded|Failed and accepts
// exactly one terminal event.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*session
	settled  map[string]settled
	logger   observability.Logger
	now      func() time.Time
}

func NewHub(logger observability.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*session),
		settled:  make(map[string]settled),
		logger:   logger,
		now:      time.Now,
	}
}

// Open registers a session for opts.OrderID and blocks until its terminal
// event is delivered or ctx ends.
func (h *Hub) Open(ctx context.Context, opts domain.WidgetOptions) (domain.WidgetEvent, error) {
	if opts.OrderID == "" {
		return domain.WidgetEvent{}, domain.Invalid("widget session needs an order id")
	}

	h.mu.Lock()
	h.pruneLocked()
	if _, ok := h.sessions[opts.OrderID]; ok {
		h.mu.Unlock()
		return domain.WidgetEvent{}, errors.Wrapf(domain.ErrConflict, "widget session %s already open", opts.OrderID)
	}
	if _, ok := h.settled[opts.OrderID]; ok {
		h.mu.Unlock()
		return domain.WidgetEvent{}, errors.Wrapf(domain.ErrAlreadySettled, "widget session %s", opts.OrderID)
	}
	s := &session{opts: opts, state: StateAwaitingWidget, events: make(chan domain.WidgetEvent, 1)}
	h.sessions[opts.OrderID] = s
	h.mu.Unlock()
	observability.OpenWidgetSessions.Inc()

	defer func() {
		h.mu.Lock()
		delete(h.sessions, opts.OrderID)
		h.mu.Unlock()
		observability.OpenWidgetSessions.Dec()
	}()

	select {
	case ev := <-s.events:
		return ev, nil
	case <-ctx.Done():
		h.logger.WithField("order_id", opts.OrderID).Warn("widget session ended without a callback")
		return domain.WidgetEvent{}, ctx.Err()
	}
}

// Deliver settles the session for orderID with ev. Only the first event of
// a session is accepted.
func (h *Hub) Deliver(orderID string, ev domain.WidgetEvent) error {
	if err := ValidateEvent(ev); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.settled[orderID]; ok {
		return errors.Wrapf(domain.ErrAlreadySettled, "widget session %s", orderID)
	}
	s, ok := h.sessions[orderID]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "widget session %s", orderID)
	}
	if s.state != StateAwaitingWidget {
		return errors.Wrapf(domain.ErrAlreadySettled, "widget session %s", orderID)
	}

	s.state = StateFailed
	if ev.Success != nil {
		s.state = StateSucceeded
	}
	h.settled[orderID] = settled{state: s.state, at: h.now()}
	s.events <- ev
	return nil
}

// State reports the state of the session for orderID.
func (h *Hub) State(orderID string) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.settled[orderID]; ok {
		return st.state
	}
	if s, ok := h.sessions[orderID]; ok {
		return s.state
	}
	return StateIdle
}

func (h *Hub) pruneLocked() {
	cutoff := h.now().Add(-settledRetention)
	for id, st := range h.settled {
		if st.at.Before(cutoff) {
			delete(h.settled, id)
		}
	}
}

// ValidateEvent checks that ev carries exactly one terminal callback.
func ValidateEvent(ev domain.WidgetEvent) error {
	switch {
	case ev.Success != nil && ev.Failure != nil:
		return domain.Invalid("widget event must be either success or failure")
	case ev.Success == nil && ev.Failure == nil:
		return domain.Invalid("widget event is empty")
	case ev.Success != nil && (ev.Success.GatewayOrderID == "" || ev.Success.GatewayPaymentID == "" || ev.Success.Signature == ""):
		return domain.Invalid("widget success needs order id, payment id and signature")
	}
	return nil
}
