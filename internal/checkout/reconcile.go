package checkout

import (
	"context"

	"github.com/robertarktes/tour-checkout/internal/domain"
	"github.com/robertarktes/tour-checkout/internal/observability"
)

const verificationFailedReason = "Payment verification failed"

// Complete turns the widget's terminal event into a PaymentOutcome. A
// success is confirmed with the backend; a failure of either kind is
// recorded through mark-failed on a best-effort basis.
func (s *Service) Complete(ctx context.Context, attempt domain.Attempt, ev domain.WidgetEvent) domain.PaymentOutcome {
	var out domain.PaymentOutcome
	switch {
	case ev.Success != nil:
		out = s.verify(ctx, attempt, *ev.Success)
	case ev.Failure != nil:
		out = attempt.Failed(*ev.Failure, s.now())
		s.markFailed(ctx, out)
	default:
		out = attempt.Failed(domain.WidgetFailure{Description: "payment widget returned no result"}, s.now())
		s.markFailed(ctx, out)
	}

	code := out.Code
	if out.Succeeded() {
		code = ""
	}
	observability.OutcomesTotal.WithLabelValues(string(out.Status), code).Inc()

	if s.ledger != nil {
		if err := s.ledger.SettleAttempt(ctx, attempt, out); err != nil {
			s.logger.WithField("order_id", attempt.Handle.OrderID).WithField("error", err.Error()).Error("failed to settle attempt")
		}
	}
	return out
}

func (s *Service) verify(ctx context.Context, attempt domain.Attempt, res domain.WidgetSuccess) domain.PaymentOutcome {
	req := domain.VerifyRequest{
		GatewayOrderID:   res.GatewayOrderID,
		GatewayPaymentID: res.GatewayPaymentID,
		Signature:        res.Signature,
		PurchaseID:       attempt.Handle.PurchaseID,
		Booking:          attempt.Snapshot(),
	}

	result, err := s.backend.Verify(ctx, req)
	if err != nil || result == nil || !result.Verified {
		reason := verificationFailedReason
		switch {
		case err != nil:
			reason = err.Error()
		case result != nil && result.Message != "":
			reason = result.Message
		}
		out := attempt.Failed(domain.WidgetFailure{
			Description: reason,
			Code:        domain.FailureCodeVerification,
			Source:      domain.FailureSourceServerVerify,
			Step:        domain.FailureStepVerification,
			OrderID:     res.GatewayOrderID,
			PaymentID:   res.GatewayPaymentID,
		}, s.now())
		s.markFailed(ctx, out)
		return out
	}

	out := domain.PaymentOutcome{
		Status:          domain.OutcomeSuccess,
		OrderID:         res.GatewayOrderID,
		PaymentID:       res.GatewayPaymentID,
		PurchaseID:      attempt.Handle.PurchaseID,
		InternalOrderID: firstNonEmpty(result.InternalOrderID, attempt.Handle.InternalOrderID),
		ReceiptNumber:   firstNonEmpty(result.ReceiptNumber, attempt.Handle.ReceiptNumber),
		Amount:          attempt.Handle.Amount,
		Currency:        attempt.Handle.Currency,
		TravelDate:      firstNonEmpty(result.TravelDate, attempt.Form.TravelDate.Value()),
		Travellers:      result.Travellers,
		UnitLabel:       firstNonEmpty(result.UnitLabel, domain.UnitLabel(attempt.Package.PriceType)),
		SettledAt:       s.now(),
	}
	if out.Travellers == 0 {
		out.Travellers = attempt.Form.Travellers
	}
	s.logger.WithField("order_id", out.OrderID).WithField("payment_id", out.PaymentID).Info("payment verified")
	return out
}

// markFailed posts the failure record. Errors are logged and swallowed: the
// caller reports the original failure, not the failure to record it.
func (s *Service) markFailed(ctx context.Context, out domain.PaymentOutcome) {
	log := s.logger.WithFields(map[string]interface{}{
		"order_id":       out.OrderID,
		"failure_code":   out.Code,
		"failure_source": out.Source,
	})
	log.Warn("payment failed")

	if err := s.backend.MarkFailed(context.WithoutCancel(ctx), out.FailureRecord()); err != nil {
		log.WithField("error", err.Error()).Error("failed to record payment failure")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
