package http

import (
	"encoding/json"
	"net/http"

	"github.com/robertarktes/tour-checkout/internal/domain"
	"github.com/robertarktes/tour-checkout/internal/observability"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusFor(kind string) int {
	switch kind {
	case "not_found":
		return http.StatusNotFound
	case "invalid_input", "past_travel_date":
		return http.StatusBadRequest
	case "sdk_load_failed":
		return http.StatusServiceUnavailable
	case "order_creation_failed":
		return http.StatusBadGateway
	case "widget_failure", "verification_failed":
		return http.StatusPaymentRequired
	case "already_settled", "conflict":
		return http.StatusConflict
	case "timeout":
		return http.StatusGatewayTimeout
	case "canceled":
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// messageFor is the text shown to the customer. Server side details stay in
// the logs.
func messageFor(kind string, err error) string {
	switch kind {
	case "sdk_load_failed":
		return domain.ErrSdkLoadFailed.Error()
	case "internal":
		return "internal error"
	case "timeout", "canceled":
		return "request did not complete in time"
	default:
		return err.Error()
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger observability.Logger, err error) {
	kind := domain.Kind(err)
	status := statusFor(kind)

	log := observability.FromContext(r.Context(), logger).WithField("error_kind", kind).WithField("error", err.Error())
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Info("request rejected")
	}

	writeJSON(w, status, errorBody{Error: kind, Message: messageFor(kind, err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
