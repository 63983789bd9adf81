package checkout

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/tour-checkout/internal/domain"
)

type State string

const (
	StateAwaitingWidget State = "awaiting_widget"
	StateSucceeded      State = "success"
	StateFailed         State = "failure"
	StateAbandoned      State = "abandoned"
)

// AttemptStatus is the read model served while an attempt runs and after it
// settles. It carries enough of the attempt to reconcile a callback on an
// instance that never ran the widget session.
type AttemptStatus struct {
	AttemptID    string                 `json:"attemptId"`
	OrderID      string                 `json:"orderId"`
	State        State                  `json:"state"`
	Package      domain.CheckoutPackage `json:"package"`
	Quote        domain.Quote           `json:"quote"`
	Handle       domain.OrderHandle     `json:"handle"`
	Widget       domain.WidgetOptions   `json:"widget"`
	Booking      domain.BookingSnapshot `json:"booking"`
	UserID       string                 `json:"userId,omitempty"`
	ReceiptLabel string                 `json:"receiptLabel"`
	Outcome      *domain.PaymentOutcome `json:"outcome,omitempty"`
	Error        string                 `json:"error,omitempty"`
	TokenHash    string                 `json:"tokenHash,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

func NewAttemptStatus(a domain.Attempt, now time.Time) AttemptStatus {
	return AttemptStatus{
		AttemptID:    a.ID.String(),
		OrderID:      a.Handle.OrderID,
		State:        StateAwaitingWidget,
		Package:      a.Package,
		Quote:        a.Quote(),
		Handle:       a.Handle,
		Widget:       a.WidgetOptions(),
		Booking:      a.Snapshot(),
		UserID:       a.UserID(),
		ReceiptLabel: a.ReceiptLabel,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    now,
	}
}

// Attempt rebuilds the attempt the status was created from.
func (st AttemptStatus) Attempt() (domain.Attempt, error) {
	id, err := uuid.Parse(st.AttemptID)
	if err != nil {
		return domain.Attempt{}, errors.Wrapf(err, "attempt id of order %s", st.OrderID)
	}
	var user *domain.User
	if st.UserID != "" {
		user = &domain.User{ID: st.UserID}
	}
	return domain.Attempt{
		ID:      id,
		Package: st.Package,
		Form: domain.TravellerForm{
			Name:       st.Booking.Name,
			Email:      st.Booking.Email,
			Phone:      st.Booking.Phone,
			TravelDate: domain.UserValue(st.Booking.TravelDate),
			Travellers: st.Booking.Travellers,
			Note:       st.Booking.Note,
		},
		User:         user,
		Handle:       st.Handle,
		ReceiptLabel: st.ReceiptLabel,
		CreatedAt:    st.CreatedAt,
	}, nil
}

// WithToken binds the status to an access token. Only its hash is kept.
func (st AttemptStatus) WithToken(token string) AttemptStatus {
	st.TokenHash = hashToken(token)
	return st
}

// Authorized reports whether the caller owns the attempt: the signed-in user
// it was created for, or whoever holds its access token.
func (st AttemptStatus) Authorized(token string, user *domain.User) bool {
	if user != nil && st.UserID != "" && user.ID == st.UserID {
		return true
	}
	if token == "" || st.TokenHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashToken(token)), []byte(st.TokenHash)) == 1
}

// Public strips what only the server may see.
func (st AttemptStatus) Public() AttemptStatus {
	st.TokenHash = ""
	return st
}

func (st AttemptStatus) Settled(out domain.PaymentOutcome, now time.Time) AttemptStatus {
	st.State = StateFailed
	if out.Succeeded() {
		st.State = StateSucceeded
	}
	st.Outcome = &out
	if err := out.Err(); err != nil {
		st.Error = domain.Kind(err)
	}
	st.UpdatedAt = now
	return st
}

// Abandoned marks an attempt whose widget session ended without a callback.
func (st AttemptStatus) Abandoned(now time.Time) AttemptStatus {
	st.State = StateAbandoned
	st.UpdatedAt = now
	return st
}

func (st AttemptStatus) Terminal() bool {
	return st.State != StateAwaitingWidget
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
