package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-checkout/internal/domain"
	"github.com/robertarktes/tour-checkout/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogRepository reads packages and fixed departures from a Mongo mirror
// of the catalog.
type CatalogRepository struct {
	packages   *mongo.Collection
	departures *mongo.Collection
	logger     observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		packages:   db.Collection("packages"),
		departures: db.Collection("fixed_departures"),
		logger:     logger,
	}
}

type PackageDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Slug        string             `bson:"slug"`
	Title       string             `bson:"title"`
	Destination string             `bson:"destination"`
	Duration    string             `bson:"duration"`
	Image       string             `bson:"image"`
	Price       float64            `bson:"price"`
	PriceType   string             `bson:"priceType"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

type DepartureDoc struct {
	Date   time.Time `bson:"date"`
	Price  float64   `bson:"price"`
	Status string    `bson:"status"`
}

type FixedDepartureDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Slug          string             `bson:"slug"`
	Title         string             `bson:"title"`
	Destination   string             `bson:"destination"`
	Duration      string             `bson:"duration"`
	Image         string             `bson:"image"`
	Price         float64            `bson:"price"`
	PriceType     string             `bson:"priceType"`
	DepartureDate time.Time          `bson:"departureDate"`
	Departures    []DepartureDoc     `bson:"departures"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

func (c *CatalogRepository) FindBySlug(ctx context.Context, slug string) (*domain.CheckoutPackage, error) {
	var doc PackageDoc
	err := c.packages.FindOne(ctx, bson.M{"slug": slug}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(domain.ErrNotFound, "package %q", slug)
	}
	if err != nil {
		c.logger.WithField("slug", slug).Error("failed to get package", err)
		return nil, err
	}
	return &domain.CheckoutPackage{
		ID:           doc.ID.Hex(),
		Slug:         doc.Slug,
		Title:        doc.Title,
		Destination:  doc.Destination,
		Duration:     doc.Duration,
		Image:        doc.Image,
		Price:        doc.Price,
		PriceType:    priceType(doc.PriceType),
		CheckoutType: domain.CheckoutPackageType,
	}, nil
}

func (c *CatalogRepository) FindDepartureBySlug(ctx context.Context, slug string) (*domain.DepartureBatch, error) {
	var doc FixedDepartureDoc
	err := c.departures.FindOne(ctx, bson.M{"slug": slug}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(domain.ErrNotFound, "fixed departure %q", slug)
	}
	if err != nil {
		c.logger.WithField("slug", slug).Error("failed to get fixed departure", err)
		return nil, err
	}

	batch := &domain.DepartureBatch{
		ID:          doc.ID.Hex(),
		Slug:        doc.Slug,
		Title:       doc.Title,
		Destination: doc.Destination,
		Duration:    doc.Duration,
		Image:       doc.Image,
		Price:       doc.Price,
		PriceType:   priceType(doc.PriceType),
	}
	if !doc.DepartureDate.IsZero() {
		batch.DepartureDate = doc.DepartureDate.UTC().Format(domain.DateLayout)
	}
	for _, d := range doc.Departures {
		batch.Departures = append(batch.Departures, domain.Departure{
			Date:   d.Date.UTC().Format(domain.DateLayout),
			Price:  d.Price,
			Status: d.Status,
		})
	}
	return batch, nil
}

// UpsertPackage writes a package into the mirror, keyed by slug.
func (c *CatalogRepository) UpsertPackage(ctx context.Context, doc PackageDoc) error {
	doc.UpdatedAt = time.Now()
	_, err := c.packages.ReplaceOne(ctx, bson.M{"slug": doc.Slug}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.WithField("slug", doc.Slug).Error("failed to upsert package", err)
		return err
	}
	return nil
}

// UpsertFixedDeparture writes a fixed departure batch into the mirror, keyed
// by slug.
func (c *CatalogRepository) UpsertFixedDeparture(ctx context.Context, doc FixedDepartureDoc) error {
	doc.UpdatedAt = time.Now()
	_, err := c.departures.ReplaceOne(ctx, bson.M{"slug": doc.Slug}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.WithField("slug", doc.Slug).Error("failed to upsert fixed departure", err)
		return err
	}
	return nil
}

func priceType(raw string) domain.PriceType {
	if domain.PriceType(raw) == domain.PerCouple {
		return domain.PerCouple
	}
	return domain.PerPerson
}
