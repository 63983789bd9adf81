package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/robertarktes/tour-checkout/internal/checkout"
	"github.com/robertarktes/tour-checkout/internal/domain"
	api "github.com/robertarktes/tour-checkout/internal/http"
	"github.com/robertarktes/tour-checkout/internal/idempotency"
	"github.com/robertarktes/tour-checkout/internal/observability"
	"github.com/robertarktes/tour-checkout/internal/widget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type catalog struct{}

func (catalog) FindBySlug(ctx context.Context, slug string) (*domain.CheckoutPackage, error) {
	if slug != "kerala-backwaters" {
		return nil, domain.ErrNotFound
	}
	return &domain.CheckoutPackage{ID: "p1", Slug: slug, Title: "Kerala Backwaters", Price: 12500, PriceType: domain.PerPerson}, nil
}

func (catalog) FindDepartureBySlug(ctx context.Context, slug string) (*domain.DepartureBatch, error) {
	return &domain.DepartureBatch{
		ID: "fd1", Slug: slug, Title: "Ladakh", Price: 30000, PriceType: domain.PerCouple,
		DepartureDate: "2030-07-01",
		Departures: []domain.Departure{
			{Date: "2030-07-01", Price: 32000, Status: "available"},
		},
	}, nil
}

type payments struct {
	mu       sync.Mutex
	orders   int
	verified bool
	verifies int
	failures []domain.FailureRecord
}

func (p *payments) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.OrderHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders++
	return &domain.OrderHandle{OrderID: "order_" + req.PackageSlug, Key: "rzp_test", Amount: req.Amount, Currency: req.Currency}, nil
}

func (p *payments) Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verifies++
	return &domain.VerifyResult{Verified: p.verified, ReceiptNumber: "R-1"}, nil
}

func (p *payments) MarkFailed(ctx context.Context, rec domain.FailureRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, rec)
	return nil
}

type memStore struct {
	mu     sync.Mutex
	m      map[string]checkout.AttemptStatus
	claims map[string]bool
}

func newMemStore() *memStore {
	return &memStore{m: map[string]checkout.AttemptStatus{}, claims: map[string]bool{}}
}

func (s *memStore) Claim(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claims[orderID] {
		return false, nil
	}
	s.claims[orderID] = true
	return true, nil
}

func (s *memStore) Put(ctx context.Context, st checkout.AttemptStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[st.OrderID] = st
	return nil
}

func (s *memStore) Get(ctx context.Context, orderID string) (*checkout.AttemptStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &st, nil
}

type allowAll struct{ calls int }

func (a *allowAll) Allow(ctx context.Context, key string, rate int, period time.Duration) (bool, error) {
	a.calls++
	return a.calls <= rate, nil
}

type memIdem struct {
	mu       sync.Mutex
	stored   map[string]idempotency.Response
	inFlight map[string]bool
}

func (m *memIdem) Get(ctx context.Context, key string) (*idempotency.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.stored[key]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *memIdem) Set(ctx context.Context, key string, resp idempotency.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[key] = resp
	return nil
}

func (m *memIdem) Begin(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[key] {
		return false, nil
	}
	m.inFlight[key] = true
	return true, nil
}

func (m *memIdem) End(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, key)
	return nil
}

type env struct {
	srv      *httptest.Server
	handlers *api.Handlers
	sdk      *httptest.Server
	payments *payments
	store    *memStore
	limiter  *allowAll
}

func newEnv(t *testing.T, scriptStatus int) *env {
	t.Helper()

	sdk := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(scriptStatus)
		w.Write([]byte("window.Razorpay = function(){};"))
	}))
	t.Cleanup(sdk.Close)

	return startInstance(t, sdk, &payments{verified: true}, newMemStore())
}

// replica starts a second API instance over the same attempt store and
// payments backend, with its own widget sessions.
func (e *env) replica(t *testing.T) *env {
	t.Helper()
	return startInstance(t, e.sdk, e.payments, e.store)
}

func startInstance(t *testing.T, sdk *httptest.Server, p *payments, store *memStore) *env {
	t.Helper()
	logger := observability.NewLogger()

	w := widget.New(widget.NewScriptLoader(sdk.URL, sdk.Client()), widget.NewHub(logger))
	svc := checkout.NewService(catalog{}, p, w, logger)
	limiter := &allowAll{}

	h := api.NewHandlers(svc, w, store, time.Minute, map[string]api.ReadinessCheck{
		"redis": func(ctx context.Context) error { return nil },
	}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})

	idem := &memIdem{stored: map[string]idempotency.Response{}, inFlight: map[string]bool{}}
	router := api.SetupRouter(h, logger, limiter, idem, api.RouterConfig{JWTSecret: testSecret, AttemptRate: 5})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &env{srv: srv, handlers: h, sdk: sdk, payments: p, store: store, limiter: limiter}
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type created struct {
	checkout.AttemptStatus
	AccessToken string `json:"accessToken"`
}

func (c created) auth() map[string]string {
	return map[string]string{api.AttemptTokenHeader: c.AccessToken}
}

func bearer(t *testing.T, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, api.Claims{
		Email:            subject + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func successEvent(orderID string) domain.WidgetEvent {
	return domain.WidgetEvent{
		Success: &domain.WidgetSuccess{GatewayOrderID: orderID, GatewayPaymentID: "pay_1", Signature: "sig"},
	}
}

func attemptBody(travelDate string) map[string]any {
	return map[string]any{
		"slug":       "kerala-backwaters",
		"name":       "Asha Menon",
		"email":      "asha@example.com",
		"travelDate": travelDate,
		"travellers": 2,
	}
}

func futureDate() string {
	return time.Now().AddDate(0, 1, 0).Format(domain.DateLayout)
}

func TestGetPackage(t *testing.T) {
	e := newEnv(t, http.StatusOK)

	resp := e.do(t, http.MethodGet, "/v1/checkout/packages/ladakh?type=fixed-departure&date=2030-07-01&travellers=3", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Package    domain.CheckoutPackage `json:"package"`
		TravelDate string                 `json:"travelDate"`
		Quote      domain.Quote           `json:"quote"`
	}](t, resp)
	assert.Equal(t, 32000.0, body.Package.Price)
	assert.Equal(t, "2030-07-01", body.TravelDate)
	assert.Equal(t, 2, body.Quote.Units)
	assert.Equal(t, "Couples", body.Quote.UnitLabel)
	assert.Equal(t, int64(6400000), body.Quote.Amount)
}

func TestGetPackage_Errors(t *testing.T) {
	e := newEnv(t, http.StatusOK)

	resp := e.do(t, http.MethodGet, "/v1/checkout/packages/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/v1/checkout/packages/kerala-backwaters?travellers=zero", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/v1/checkout/packages/kerala-backwaters?type=cruise", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAttempt_SuccessFlow(t *testing.T) {
	e := newEnv(t, http.StatusOK)
	headers := map[string]string{"Idempotency-Key": "key-0000000000000001"}

	resp := e.do(t, http.MethodPost, "/v1/checkout/attempts", attemptBody(futureDate()), headers)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	st := decode[created](t, resp)
	assert.Equal(t, "order_kerala-backwaters", st.OrderID)
	assert.Equal(t, checkout.StateAwaitingWidget, st.State)
	assert.Equal(t, int64(2500000), st.Widget.Amount)
	assert.Equal(t, "asha@example.com", st.Widget.Prefill.Email)
	assert.NotEmpty(t, st.AccessToken)
	assert.Empty(t, st.TokenHash)

	resp = e.do(t, http.MethodPost, "/v1/checkout/attempts/"+st.OrderID+"/events", successEvent(st.OrderID), st.auth())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var final checkout.AttemptStatus
	require.Eventually(t, func() bool {
		r := e.do(t, http.MethodGet, "/v1/checkout/attempts/"+st.OrderID, nil, st.auth())
		final = decode[checkout.AttemptStatus](t, r)
		return final.Terminal()
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, checkout.StateSucceeded, final.State)
	require.NotNil(t, final.Outcome)
	assert.Equal(t, "R-1", final.Outcome.ReceiptNumber)
	assert.Empty(t, final.TokenHash)

	resp = e.do(t, http.MethodPost, "/v1/checkout/attempts/"+st.OrderID+"/events", domain.WidgetEvent{
		Failure: &domain.WidgetFailure{Description: "late"},
	}, st.auth())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAttempt_VerificationFailure(t *testing.T) {
	e := newEnv(t, http.StatusOK)
	e.payments.verified = false

	resp := e.do(t, http.MethodPost, "/v1/checkout/attempts", attemptBody(futureDate()), map[string]string{"Idempotency-Key": "key-0000000000000002"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	st := decode[created](t, resp)

	resp = e.do(t, http.MethodPost, "/v1/checkout/attempts/"+st.OrderID+"/events", successEvent(st.OrderID), st.auth())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		got, err := e.store.Get(context.Background(), st.OrderID)
		return err == nil && got.Terminal()
	}, 2*time.Second, 20*time.Millisecond)

	got, _ := e.store.Get(context.Background(), st.OrderID)
	assert.Equal(t, checkout.StateFailed, got.State)
	assert.Equal(t, "verification_failed", got.Error)
	assert.Equal(t, domain.FailureSourceServerVerify, got.Outcome.Source)
}

func TestAttempt_Rejections(t *testing.T) {
	yesterday := time.Now().AddDate(0, 0, -1).Format(domain.DateLayout)

	tests := []struct {
		name   string
		script int
		body   map[string]any
		want   int
		kind   string
	}{
		{"past travel date", http.StatusOK, attemptBody(yesterday), http.StatusBadRequest, "past_travel_date"},
		{"missing travel date", http.StatusOK, attemptBody(""), http.StatusBadRequest, "invalid_input"},
		{"sdk unreachable", http.StatusInternalServerError, attemptBody(futureDate()), http.StatusServiceUnavailable, "sdk_load_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.script)
			resp := e.do(t, http.MethodPost, "/v1/checkout/attempts", tt.body, map[string]string{"Idempotency-Key": "key-0000000000000003"})
			assert.Equal(t, tt.want, resp.StatusCode)
			body := decode[map[string]string](t, resp)
			assert.Equal(t, tt.kind, body["error"])
			assert.Zero(t, e.payments.orders)
		})
	}
}

func TestAttempt_IdempotentReplay(t *testing.T) {
	e := newEnv(t, http.StatusOK)
	headers := map[string]string{"Idempotency-Key": "key-0000000000000004"}

	first := e.do(t, http.MethodPost, "/v1/checkout/attempts", attemptBody(futureDate()), headers)
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second := e.do(t, http.MethodPost, "/v1/checkout/attempts", attemptBody(futureDate()), headers)
	assert.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, 1, e.payments.orders)

	resp := e.do(t, http.MethodPost, "/v1/checkout/attempts", attemptBody(futureDate()), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAttempt_RateLimited(t *testing.T) {
	e := newEnv(t, http.StatusOK)
	e.limiter.calls = 5

	resp := e.do(t, http.MethodPost, "/v1/checkout/attempts", attemptBody(futureDate()), map[string]string{"Idempotency-Key": "key-0000000000000005"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestJWT(t *testing.T) {
	e := newEnv(t, http.StatusOK)

	resp := e.do(t, http.MethodGet, "/v1/checkout/packages/kerala-backwaters", nil, map[string]string{"Authorization": bearer(t, "user-1")})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/v1/checkout/packages/kerala-backwaters", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEvents_UnknownOrder(t *testing.T) {
	e := newEnv(t, http.StatusOK)
	resp := e.do(t, http.MethodPost, "/v1/checkout/attempts/order_missing/events", domain.WidgetEvent{
		Failure: &domain.WidgetFailure{Code: "BAD_REQUEST_ERROR"},
	}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAttempt_OnlyOwnerCanReadOrSettle(t *testing.T) {
	e := newEnv(t, http.StatusOK)

	resp := e.do(t, http.MethodPost, "/v1/checkout/attempts", attemptBody(futureDate()), map[string]string{"Idempotency-Key": "key-0000000000000006"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	st := decode[created](t, resp)
	path := "/v1/checkout/attempts/" + st.OrderID

	strangers := []map[string]string{
		nil,
		{api.AttemptTokenHeader: "not-the-token"},
		{"Authorization": bearer(t, "user-2")},
	}
	for _, headers := range strangers {
		assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, path, nil, headers).StatusCode)
		assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, path+"/events", domain.WidgetEvent{
			Failure: &domain.WidgetFailure{Code: "BAD_REQUEST_ERROR", Description: "cancelled by someone else"},
		}, headers).StatusCode)
	}

	got, err := e.store.Get(context.Background(), st.OrderID)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateAwaitingWidget, got.State)
	assert.Empty(t, e.payments.failures)

	resp = e.do(t, http.MethodPost, path+"/events", successEvent(st.OrderID), st.auth())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool {
		got, err := e.store.Get(context.Background(), st.OrderID)
		return err == nil && got.State == checkout.StateSucceeded
	}, 2*time.Second, 20*time.Millisecond)
}

func TestAttempt_SignedInOwner(t *testing.T) {
	e := newEnv(t, http.StatusOK)
	owner := bearer(t, "user-1")

	resp := e.do(t, http.MethodPost, "/v1/checkout/attempts", attemptBody(futureDate()), map[string]string{
		"Idempotency-Key": "key-0000000000000007",
		"Authorization":   owner,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	st := decode[created](t, resp)
	path := "/v1/checkout/attempts/" + st.OrderID

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, path, nil, map[string]string{"Authorization": owner}).StatusCode)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, path, nil, map[string]string{"Authorization": bearer(t, "user-2")}).StatusCode)
}

func TestAttempt_CallbackAfterShutdownIsReconciledElsewhere(t *testing.T) {
	first := newEnv(t, http.StatusOK)

	resp := first.do(t, http.MethodPost, "/v1/checkout/attempts", attemptBody(futureDate()), map[string]string{"Idempotency-Key": "key-0000000000000008"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	st := decode[created](t, resp)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, first.handlers.Shutdown(ctx))

	got, err := first.store.Get(context.Background(), st.OrderID)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateAwaitingWidget, got.State)

	second := first.replica(t)
	resp = second.do(t, http.MethodPost, "/v1/checkout/attempts/"+st.OrderID+"/events", successEvent(st.OrderID), st.auth())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		got, err := second.store.Get(context.Background(), st.OrderID)
		return err == nil && got.Terminal()
	}, 3*time.Second, 20*time.Millisecond)

	got, err = second.store.Get(context.Background(), st.OrderID)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateSucceeded, got.State)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, "R-1", got.Outcome.ReceiptNumber)
	assert.Equal(t, 1, second.payments.verifies)

	resp = second.do(t, http.MethodPost, "/v1/checkout/attempts/"+st.OrderID+"/events", successEvent(st.OrderID), st.auth())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	e := newEnv(t, http.StatusOK)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/v1/healthz", nil, nil).StatusCode)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/v1/readyz", nil, nil).StatusCode)
}

func TestUserFrom(t *testing.T) {
	assert.Nil(t, api.UserFrom(context.Background()))
	ctx := api.WithUser(context.Background(), &domain.User{ID: "u1"})
	assert.Equal(t, "u1", api.UserFrom(ctx).ID)
}
