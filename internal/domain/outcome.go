package domain

import (
	"time"

	"github.com/cockroachdb/errors"
)

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

const (
	FailureCodeVerification   = "verification_failed"
	FailureSourceServerVerify = "server_verify"
	FailureStepVerification   = "payment_verification"

	FailureCodeOrderCreation  = "order_creation_failed"
	FailureSourceServerCreate = "server_create_order"
	FailureStepOrderCreation  = "order_creation"
)

// PaymentOutcome is the terminal result of one checkout attempt.
type PaymentOutcome struct {
	Status          OutcomeStatus `json:"status"`
	OrderID         string        `json:"orderId,omitempty"`
	PaymentID       string        `json:"paymentId,omitempty"`
	PurchaseID      string        `json:"purchaseId,omitempty"`
	InternalOrderID string        `json:"internalOrderId,omitempty"`
	ReceiptNumber   string        `json:"receiptNumber,omitempty"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency"`
	TravelDate      string        `json:"travelDate,omitempty"`
	Travellers      int           `json:"travellers,omitempty"`
	UnitLabel       string        `json:"unitLabel,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	Code            string        `json:"code,omitempty"`
	Source          string        `json:"source,omitempty"`
	Step            string        `json:"step,omitempty"`
	SettledAt       time.Time     `json:"settledAt"`
}

func (o PaymentOutcome) Succeeded() bool {
	return o.Status == OutcomeSuccess
}

// Err returns nil for a success, otherwise the failure classified as
// ErrVerificationFailed or ErrWidgetFailure with Reason as its message.
func (o PaymentOutcome) Err() error {
	if o.Succeeded() {
		return nil
	}
	base := ErrWidgetFailure
	if o.Code == FailureCodeVerification && o.Source == FailureSourceServerVerify {
		base = ErrVerificationFailed
	}
	msg := o.Reason
	if msg == "" {
		msg = base.Error()
	}
	return errors.Mark(errors.New(msg), base)
}

// FailureRecord builds the mark-failed payload for a failed outcome.
func (o PaymentOutcome) FailureRecord() FailureRecord {
	return FailureRecord{
		PurchaseID:        o.PurchaseID,
		RazorpayOrderID:   o.OrderID,
		RazorpayPaymentID: o.PaymentID,
		FailureReason:     o.Reason,
		FailureCode:       o.Code,
		FailureSource:     o.Source,
		FailureStep:       o.Step,
	}
}
