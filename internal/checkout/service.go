// Package checkout drives one booking attempt through the payment state
// machine: resolve package, create the gateway order, run the widget session
// and reconcile its result with the backend.
package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-checkout/internal/domain"
	"github.com/robertarktes/tour-checkout/internal/observability"
)

const duplicateWindow = 24 * time.Hour

type Service struct {
	repo     PackageRepository
	backend  PaymentsBackend
	widget   PaymentWidget
	ledger   AttemptLedger
	currency string
	logger   observability.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithLedger(l AttemptLedger) Option {
	return func(s *Service) { s.ledger = l }
}

func WithCurrency(c string) Option {
	return func(s *Service) { s.currency = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo PackageRepository, backend PaymentsBackend, widget PaymentWidget, logger observability.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		backend:  backend,
		widget:   widget,
		currency: "INR",
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type PayRequest struct {
	Resolve ResolveRequest
	Form    domain.TravellerForm
	User    *domain.User
}

// Pay runs a whole attempt: Begin, then Await. No step is retried.
func (s *Service) Pay(ctx context.Context, req PayRequest) (domain.PaymentOutcome, error) {
	attempt, err := s.Begin(ctx, req)
	if err != nil {
		return domain.PaymentOutcome{}, err
	}
	out, err := s.Await(ctx, *attempt)
	if err != nil {
		return domain.PaymentOutcome{}, err
	}
	return out, out.Err()
}

// Begin resolves the package, checks the widget SDK is reachable and creates
// the gateway order. The form is validated before the SDK fetch, so a bad
// date never costs a network call, and the SDK check comes before the order
// so an unreachable widget never leaves an orphaned order behind.
func (s *Service) Begin(ctx context.Context, req PayRequest) (*domain.Attempt, error) {
	form := req.Form
	pkg, err := s.Resolve(ctx, req.Resolve, &form)
	if err != nil {
		return nil, err
	}
	if err := s.validate(*pkg, form); err != nil {
		return nil, err
	}
	if err := s.widget.Load(ctx); err != nil {
		return nil, errors.Mark(err, domain.ErrSdkLoadFailed)
	}
	return s.createOrder(ctx, *pkg, form, req.User)
}

// Submit creates the gateway order for pkg. The travel date guard runs
// before any network call.
func (s *Service) Submit(ctx context.Context, pkg domain.CheckoutPackage, form domain.TravellerForm, user *domain.User) (*domain.Attempt, error) {
	if err := s.validate(pkg, form); err != nil {
		return nil, err
	}
	return s.createOrder(ctx, pkg, form, user)
}

func (s *Service) createOrder(ctx context.Context, pkg domain.CheckoutPackage, form domain.TravellerForm, user *domain.User) (*domain.Attempt, error) {
	attempt := domain.NewAttempt(pkg, form, user, s.now())
	log := s.logger.WithFields(map[string]interface{}{
		"attempt_id":    attempt.ID.String(),
		"package_slug":  pkg.Slug,
		"checkout_type": string(pkg.CheckoutType),
	})
	s.flagDuplicate(ctx, attempt, log)

	handle, err := s.backend.CreateOrder(ctx, attempt.CreateOrderRequest(s.currency))
	if err == nil && (handle == nil || handle.OrderID == "") {
		err = errors.New("Unable to create payment order")
	}
	if err != nil {
		observability.AttemptsTotal.WithLabelValues(string(pkg.CheckoutType), "rejected").Inc()
		s.markFailed(ctx, attempt.Failed(domain.WidgetFailure{
			Description: err.Error(),
			Code:        domain.FailureCodeOrderCreation,
			Source:      domain.FailureSourceServerCreate,
			Step:        domain.FailureStepOrderCreation,
		}, s.now()))
		if !errors.Is(err, domain.ErrOrderCreationFailed) {
			err = errors.Mark(err, domain.ErrOrderCreationFailed)
		}
		return nil, err
	}
	if handle.Currency == "" {
		handle.Currency = s.currency
	}
	if handle.Amount == 0 {
		handle.Amount = attempt.Quote().Amount
	}
	attempt.Handle = *handle
	observability.AttemptsTotal.WithLabelValues(string(pkg.CheckoutType), "created").Inc()

	if s.ledger != nil {
		if err := s.ledger.RecordAttempt(ctx, attempt); err != nil {
			log.WithField("error", err.Error()).Error("failed to record attempt")
		}
	}
	log.WithField("order_id", handle.OrderID).Info("payment order created")
	return &attempt, nil
}

// Await opens the widget session for attempt and reconciles its single
// terminal event. It only returns an error when the session itself could not
// produce an event, for example when ctx ends first.
func (s *Service) Await(ctx context.Context, attempt domain.Attempt) (domain.PaymentOutcome, error) {
	ev, err := s.widget.Open(ctx, attempt.WidgetOptions())
	if err != nil {
		return domain.PaymentOutcome{}, errors.Wrapf(err, "widget session %s", attempt.Handle.OrderID)
	}
	return s.Complete(context.WithoutCancel(ctx), attempt, ev), nil
}

func (s *Service) validate(pkg domain.CheckoutPackage, form domain.TravellerForm) error {
	date, ok := domain.CalendarDate(form.TravelDate.Value())
	if !ok {
		return domain.Invalid("travel date is required")
	}
	if domain.IsPastDate(date, domain.Today(s.now())) {
		return domain.ErrPastTravelDate
	}
	if form.Travellers < 1 {
		return domain.Invalid("at least one traveller is required")
	}
	if strings.TrimSpace(form.Name) == "" || strings.TrimSpace(form.Email) == "" {
		return domain.Invalid("name and email are required")
	}
	if pkg.Price <= 0 {
		return domain.Invalid("package " + pkg.Slug + " has no payable price")
	}
	return nil
}

// flagDuplicate warns about earlier attempts for the same customer and
// package. Orders are never blocked here; deduplication is the backend's call.
func (s *Service) flagDuplicate(ctx context.Context, a domain.Attempt, log observability.Logger) {
	if s.ledger == nil || a.UserKey() == "" {
		return
	}
	n, err := s.ledger.CountRecentAttempts(ctx, a.UserKey(), a.Package.Slug, a.CreatedAt.Add(-duplicateWindow))
	if err != nil {
		log.WithField("error", err.Error()).Warn("failed to count recent attempts")
		return
	}
	if n > 0 {
		log.WithField("previous_attempts", n).Warn("possible duplicate order")
	}
}
