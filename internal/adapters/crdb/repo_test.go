package crdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/tour-checkout/internal/adapters/crdb"
	"github.com/robertarktes/tour-checkout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newRepo(t *testing.T) *crdb.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = crdbContainer.Terminate(ctx) })

	dsn, err := crdbContainer.Endpoint(ctx, "postgresql")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn+"/defaultdb?sslmode=disable&user=root")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := crdb.NewRepository(pool)
	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func newAttempt(orderID string, createdAt time.Time) domain.Attempt {
	pkg := domain.CheckoutPackage{ID: "p1", Slug: "kerala-backwaters", Price: 12500, PriceType: domain.PerPerson, CheckoutType: domain.CheckoutPackageType}
	form := domain.TravellerForm{Name: "Asha", Email: "Asha@Example.com", TravelDate: domain.UserValue("2030-01-10"), Travellers: 2}
	a := domain.NewAttempt(pkg, form, nil, createdAt)
	a.Handle = domain.OrderHandle{OrderID: orderID, Key: "rzp_test", Amount: 2500000, Currency: "INR", PurchaseID: "pur_" + orderID}
	return a
}

func TestRepository_AttemptLifecycle(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	a := newAttempt("order_1", now)
	require.NoError(t, repo.RecordAttempt(ctx, a))

	err := repo.RecordAttempt(ctx, newAttempt("order_1", now))
	assert.True(t, errors.Is(err, domain.ErrConflict))

	n, err := repo.CountRecentAttempts(ctx, "asha@example.com", "kerala-backwaters", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out := domain.PaymentOutcome{Status: domain.OutcomeSuccess, OrderID: "order_1", PaymentID: "pay_1", SettledAt: now}
	require.NoError(t, repo.SettleAttempt(ctx, a, out))

	rec, err := repo.GetAttempt(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, crdb.StatusSucceeded, rec.Status)
	assert.Equal(t, "pay_1", rec.PaymentID)
	assert.Equal(t, int64(2500000), rec.Amount)
	require.NotNil(t, rec.SettledAt)

	err = repo.SettleAttempt(ctx, a, out)
	assert.True(t, errors.Is(err, domain.ErrAlreadySettled))

	records, err := repo.ClaimUnpublishedOutbox(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, crdb.EventAttemptCreated, records[0].EventType)
	assert.Equal(t, crdb.EventAttemptSettled, records[1].EventType)
	require.NoError(t, repo.MarkPublished(ctx, records[0].ID, time.Now()))
}

func TestRepository_OutboxClaims(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordAttempt(ctx, newAttempt("order_claim", time.Now().UTC())))

	first, err := repo.ClaimUnpublishedOutbox(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := repo.ClaimUnpublishedOutbox(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestRepository_OutboxLeaseExpiry(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordAttempt(ctx, newAttempt("order_lease", time.Now().UTC())))

	first, err := repo.ClaimUnpublishedOutbox(ctx, 10, -time.Second)
	require.NoError(t, err)
	require.Len(t, first, 1)

	again, err := repo.ClaimUnpublishedOutbox(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, first[0].ID, again[0].ID)

	require.NoError(t, repo.MarkPublished(ctx, again[0].ID, time.Now()))
	none, err := repo.ClaimUnpublishedOutbox(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepository_AbandonStaleAttempts(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := newAttempt("order_stale", now.Add(-2*time.Hour))
	fresh := newAttempt("order_fresh", now)
	require.NoError(t, repo.RecordAttempt(ctx, stale))
	require.NoError(t, repo.RecordAttempt(ctx, fresh))

	found, err := repo.GetStaleAttempts(ctx, now.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "order_stale", found[0].OrderID)

	require.NoError(t, repo.AbandonAttempt(ctx, "order_stale"))
	err = repo.AbandonAttempt(ctx, "order_stale")
	assert.True(t, errors.Is(err, domain.ErrAlreadySettled))

	err = repo.AbandonAttempt(ctx, "order_missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	rec, err := repo.GetAttempt(ctx, "order_stale")
	require.NoError(t, err)
	assert.Equal(t, crdb.StatusAbandoned, rec.Status)
}
