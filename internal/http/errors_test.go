package http

import (
	"context"
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-checkout/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.Wrap(domain.ErrNotFound, "package"), http.StatusNotFound},
		{domain.Invalid("bad"), http.StatusBadRequest},
		{domain.ErrPastTravelDate, http.StatusBadRequest},
		{errors.Mark(errors.New("dial tcp"), domain.ErrSdkLoadFailed), http.StatusServiceUnavailable},
		{errors.Mark(errors.New("Departure is sold out"), domain.ErrOrderCreationFailed), http.StatusBadGateway},
		{domain.ErrWidgetFailure, http.StatusPaymentRequired},
		{domain.ErrVerificationFailed, http.StatusPaymentRequired},
		{domain.ErrAlreadySettled, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(domain.Kind(tt.err)))
		})
	}
}

func TestMessageFor_HidesInternals(t *testing.T) {
	err := errors.Mark(errors.New("dial tcp 10.0.0.1:443: refused"), domain.ErrSdkLoadFailed)
	assert.Equal(t, domain.ErrSdkLoadFailed.Error(), messageFor(domain.Kind(err), err))

	err = errors.New("pq: relation missing")
	assert.Equal(t, "internal error", messageFor(domain.Kind(err), err))

	err = errors.Mark(errors.New("Departure is sold out"), domain.ErrOrderCreationFailed)
	assert.Equal(t, "Departure is sold out", messageFor(domain.Kind(err), err))
}
