package checkout

import (
	"context"
	"time"

	"github.com/robertarktes/tour-checkout/internal/domain"
)

// PackageRepository looks up catalog records by slug. Implementations
// return domain.ErrNotFound when nothing matches.
type PackageRepository interface {
	FindBySlug(ctx context.Context, slug string) (*domain.CheckoutPackage, error)
	FindDepartureBySlug(ctx context.Context, slug string) (*domain.DepartureBatch, error)
}

// PaymentsBackend is the order/verify/mark-failed surface of the gateway
// backend.
type PaymentsBackend interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.OrderHandle, error)
	Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error)
	MarkFailed(ctx context.Context, rec domain.FailureRecord) error
}

// PaymentWidget loads the hosted payment widget and runs one widget session
// per order, yielding exactly one terminal event.
type PaymentWidget interface {
	Load(ctx context.Context) error
	Open(ctx context.Context, opts domain.WidgetOptions) (domain.WidgetEvent, error)
}

// AttemptLedger persists attempts and their outcomes.
type AttemptLedger interface {
	RecordAttempt(ctx context.Context, a domain.Attempt) error
	SettleAttempt(ctx context.Context, a domain.Attempt, out domain.PaymentOutcome) error
	CountRecentAttempts(ctx context.Context, userKey, slug string, since time.Time) (int, error)
}
