package mongo_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	mongoadapter "github.com/robertarktes/tour-checkout/internal/adapters/mongo"
	"github.com/robertarktes/tour-checkout/internal/domain"
	"github.com/robertarktes/tour-checkout/internal/observability"
	"github.com/robertarktes/tour-checkout/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func newDB(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mongoContainer.Terminate(ctx) })

	endpoint, err := mongoContainer.Endpoint(ctx, "mongodb")
	require.NoError(t, err)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	return client.Database("checkout_test")
}

func TestCatalogRepository(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	repo := mongoadapter.NewCatalogRepository(db, observability.NewLogger())

	require.NoError(t, repo.UpsertPackage(ctx, mongoadapter.PackageDoc{
		Slug: "kerala-backwaters", Title: "Kerala Backwaters", Price: 12500, PriceType: "per_person",
	}))
	require.NoError(t, repo.UpsertPackage(ctx, mongoadapter.PackageDoc{
		Slug: "kerala-backwaters", Title: "Kerala Backwaters", Price: 13000, PriceType: "per_person",
	}))

	pkg, err := repo.FindBySlug(ctx, "kerala-backwaters")
	require.NoError(t, err)
	assert.Equal(t, 13000.0, pkg.Price)
	assert.Equal(t, domain.PerPerson, pkg.PriceType)
	assert.NotEmpty(t, pkg.ID)

	_, err = repo.FindBySlug(ctx, "atlantis")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	departure := time.Date(2030, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertFixedDeparture(ctx, mongoadapter.FixedDepartureDoc{
		Slug: "ladakh", Title: "Ladakh", Price: 30000, PriceType: "per_couple", DepartureDate: departure,
		Departures: []mongoadapter.DepartureDoc{
			{Date: departure, Price: 32000, Status: "available"},
			{Date: departure.AddDate(0, 0, 14), Price: 0, Status: "soldout"},
		},
	}))

	batch, err := repo.FindDepartureBySlug(ctx, "ladakh")
	require.NoError(t, err)
	assert.Equal(t, domain.PerCouple, batch.PriceType)
	assert.Equal(t, "2030-07-01", batch.DepartureDate)
	require.Len(t, batch.Departures, 2)
	assert.Equal(t, "2030-07-15", batch.Departures[1].Date)
	assert.Equal(t, "soldout", batch.Departures[1].Status)

	_, err = repo.FindDepartureBySlug(ctx, "atlantis")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAuditLogger(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	audit := mongoadapter.NewAuditLogger(db, observability.NewLogger())

	created := outbox.Envelope{
		EventID:      "agg-1:checkout.attempt.created",
		EventType:    "checkout.attempt.created",
		EventVersion: outbox.EventVersion,
		OccurredAt:   time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
		AggregateID:  "agg-1",
		Data:         json.RawMessage(`{"orderId":"order_1","amount":2500000}`),
	}
	settled := created
	settled.EventID = "agg-1:checkout.attempt.settled"
	settled.EventType = "checkout.attempt.settled"
	settled.OccurredAt = created.OccurredAt.Add(time.Minute)
	settled.Data = json.RawMessage(`{"orderId":"order_1","status":"SUCCEEDED"}`)

	require.NoError(t, audit.LogEnvelope(ctx, settled))
	require.NoError(t, audit.LogEnvelope(ctx, created))
	require.NoError(t, audit.LogEnvelope(ctx, created))

	logs, err := audit.History(ctx, "agg-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "checkout.attempt.created", logs[0].Action)
	assert.Equal(t, "checkout.attempt.settled", logs[1].Action)
	assert.Equal(t, "SUCCEEDED", logs[1].Data["status"])
}
