package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/tour-checkout/internal/checkout"
	"github.com/robertarktes/tour-checkout/internal/domain"
	"github.com/robertarktes/tour-checkout/internal/observability"
	"github.com/robertarktes/tour-checkout/internal/widget"
)

const (
	storeTimeout     = 5 * time.Second
	reconcileTimeout = 2 * time.Minute
	deliverRetries   = 20
	deliverBackoff   = 50 * time.Millisecond
)

type Checkout interface {
	Resolve(ctx context.Context, req checkout.ResolveRequest, form *domain.TravellerForm) (*domain.CheckoutPackage, error)
	Begin(ctx context.Context, req checkout.PayRequest) (*domain.Attempt, error)
	Await(ctx context.Context, attempt domain.Attempt) (domain.PaymentOutcome, error)
	Complete(ctx context.Context, attempt domain.Attempt, ev domain.WidgetEvent) domain.PaymentOutcome
}

type WidgetInbox interface {
	Deliver(orderID string, ev domain.WidgetEvent) error
}

type AttemptStore interface {
	Put(ctx context.Context, st checkout.AttemptStatus) error
	Get(ctx context.Context, orderID string) (*checkout.AttemptStatus, error)
	// Claim records the first callback for orderID. It reports false when a
	// callback was already claimed.
	Claim(ctx context.Context, orderID string, ttl time.Duration) (bool, error)
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type Handlers struct {
	checkout   Checkout
	widget     WidgetInbox
	attempts   AttemptStore
	sessionTTL time.Duration
	checks     map[string]ReadinessCheck
	logger     observability.Logger
	now        func() time.Time

	sessions sync.WaitGroup
	base     context.Context
	stop     context.CancelFunc
}

func NewHandlers(co Checkout, widget WidgetInbox, attempts AttemptStore, sessionTTL time.Duration, checks map[string]ReadinessCheck, logger observability.Logger) *Handlers {
	base, stop := context.WithCancel(context.Background())
	return &Handlers{
		checkout:   co,
		widget:     widget,
		attempts:   attempts,
		sessionTTL: sessionTTL,
		checks:     checks,
		logger:     logger,
		now:        time.Now,
		base:       base,
		stop:       stop,
	}
}

// Shutdown ends every open widget session and waits for their results to be
// stored, or for ctx to end.
func (h *Handlers) Shutdown(ctx context.Context) error {
	h.stop()
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type packageResponse struct {
	Package    domain.CheckoutPackage `json:"package"`
	TravelDate string                 `json:"travelDate,omitempty"`
	Quote      domain.Quote           `json:"quote"`
}

func (h *Handlers) GetPackage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	travellers := 1
	if raw := q.Get("travellers"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, h.logger, domain.Invalid("travellers must be a positive number"))
			return
		}
		travellers = n
	}

	var form domain.TravellerForm
	pkg, err := h.checkout.Resolve(r.Context(), checkout.ResolveRequest{
		Slug:          chi.URLParam(r, "slug"),
		CheckoutType:  domain.CheckoutType(q.Get("type")),
		DepartureDate: q.Get("date"),
	}, &form)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, packageResponse{
		Package:    *pkg,
		TravelDate: form.TravelDate.Value(),
		Quote:      domain.NewQuote(*pkg, travellers),
	})
}

type attemptRequest struct {
	Slug          string `json:"slug"`
	CheckoutType  string `json:"checkoutType"`
	DepartureDate string `json:"departureDate"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	TravelDate    string `json:"travelDate"`
	Travellers    int    `json:"travellers"`
	Note          string `json:"note"`
}

func (req attemptRequest) payRequest(user *domain.User) checkout.PayRequest {
	form := domain.TravellerForm{
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.TrimSpace(req.Email),
		Phone:      strings.TrimSpace(req.Phone),
		Travellers: req.Travellers,
		Note:       req.Note,
	}
	if d := strings.TrimSpace(req.TravelDate); d != "" {
		form.TravelDate = domain.UserValue(d)
	}
	return checkout.PayRequest{
		Resolve: checkout.ResolveRequest{
			Slug:          req.Slug,
			CheckoutType:  domain.CheckoutType(req.CheckoutType),
			DepartureDate: req.DepartureDate,
		},
		Form: form,
		User: user,
	}
}

// AttemptTokenHeader carries the access token issued with an attempt. Guests
// need it to read the attempt or deliver its callback.
const AttemptTokenHeader = "X-Attempt-Token"

type attemptCreated struct {
	checkout.AttemptStatus
	AccessToken string `json:"accessToken"`
}

// CreateAttempt creates the gateway order and opens the widget session. The
// session runs in the background until the widget calls back through
// DeliverEvent or the session TTL ends.
func (h *Handlers) CreateAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, domain.Invalid("malformed request body"))
		return
	}

	attempt, err := h.checkout.Begin(r.Context(), req.payRequest(UserFrom(r.Context())))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	token := uuid.NewString()
	st := checkout.NewAttemptStatus(*attempt, h.now()).WithToken(token)
	if err := h.attempts.Put(r.Context(), st); err != nil {
		writeError(w, r, h.logger, errors.Wrap(err, "store attempt"))
		return
	}

	h.sessions.Add(1)
	go h.runSession(r.Context(), *attempt, st)

	writeJSON(w, http.StatusCreated, attemptCreated{AttemptStatus: st.Public(), AccessToken: token})
}

func (h *Handlers) runSession(reqCtx context.Context, attempt domain.Attempt, st checkout.AttemptStatus) {
	defer h.sessions.Done()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), h.sessionTTL)
	defer cancel()
	release := context.AfterFunc(h.base, cancel)
	defer release()

	log := observability.FromContext(ctx, h.logger).WithField("order_id", attempt.Handle.OrderID)

	out, err := h.checkout.Await(ctx, attempt)
	if err != nil {
		if h.base.Err() != nil {
			// The attempt stays open; its callback is reconciled by whichever
			// instance receives it.
			log.Info("widget session released on shutdown")
			return
		}
		log.WithField("error", err.Error()).Warn("widget session abandoned")
		if h.settledElsewhere(ctx, st.OrderID) {
			return
		}
		st = st.Abandoned(h.now())
	} else {
		st = st.Settled(out, h.now())
	}

	h.store(ctx, log, st)
}

// settledElsewhere reports whether a reconciled callback already stored a
// result for orderID.
func (h *Handlers) settledElsewhere(ctx context.Context, orderID string) bool {
	getCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	cur, err := h.attempts.Get(getCtx, orderID)
	return err == nil && cur.Terminal()
}

func (h *Handlers) store(ctx context.Context, log observability.Logger, st checkout.AttemptStatus) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := h.attempts.Put(storeCtx, st); err != nil {
		log.WithField("error", err.Error()).Error("failed to store attempt result")
	}
}

// ownedAttempt loads the attempt for orderID. Callers that neither own it nor
// hold its token get ErrNotFound.
func (h *Handlers) ownedAttempt(r *http.Request, orderID string) (*checkout.AttemptStatus, error) {
	st, err := h.attempts.Get(r.Context(), orderID)
	if err != nil {
		return nil, err
	}
	if !st.Authorized(r.Header.Get(AttemptTokenHeader), UserFrom(r.Context())) {
		return nil, errors.Wrapf(domain.ErrNotFound, "attempt for order %s", orderID)
	}
	return st, nil
}

// DeliverEvent hands the widget's terminal callback to its session.
func (h *Handlers) DeliverEvent(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var ev domain.WidgetEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, r, h.logger, domain.Invalid("malformed widget event"))
		return
	}
	if err := widget.ValidateEvent(ev); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	st, err := h.ownedAttempt(r, orderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.deliver(r.Context(), *st, ev); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"orderId": orderID, "state": "processing"})
}

// deliver claims the attempt's callback and hands it to the local session.
// The session may not be registered yet when the callback races its start,
// so delivery is retried briefly. When no local session turns up, the
// session lives on another instance or was released on shutdown, and the
// callback is reconciled here from the stored attempt.
func (h *Handlers) deliver(ctx context.Context, st checkout.AttemptStatus, ev domain.WidgetEvent) error {
	if st.Terminal() {
		return errors.Wrapf(domain.ErrAlreadySettled, "attempt %s is %s", st.OrderID, st.State)
	}
	claimed, err := h.attempts.Claim(ctx, st.OrderID, h.sessionTTL)
	if err != nil {
		return errors.Wrapf(err, "claim callback for %s", st.OrderID)
	}
	if !claimed {
		return errors.Wrapf(domain.ErrAlreadySettled, "callback for %s already received", st.OrderID)
	}

	for i := 0; i < deliverRetries; i++ {
		err := h.widget.Deliver(st.OrderID, ev)
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(deliverBackoff):
		}
	}

	attempt, err := st.Attempt()
	if err != nil {
		return err
	}
	h.sessions.Add(1)
	go h.reconcile(ctx, attempt, st, ev)
	return nil
}

func (h *Handlers) reconcile(reqCtx context.Context, attempt domain.Attempt, st checkout.AttemptStatus, ev domain.WidgetEvent) {
	defer h.sessions.Done()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), reconcileTimeout)
	defer cancel()

	log := observability.FromContext(ctx, h.logger).WithField("order_id", st.OrderID)
	log.Info("reconciling callback without a local widget session")

	out := h.checkout.Complete(ctx, attempt, ev)
	h.store(ctx, log, st.Settled(out, h.now()))
}

func (h *Handlers) GetAttempt(w http.ResponseWriter, r *http.Request) {
	st, err := h.ownedAttempt(r, chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Public())
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, failed)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
