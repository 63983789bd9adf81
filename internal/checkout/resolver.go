package checkout

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-checkout/internal/domain"
)

type ResolveRequest struct {
	Slug          string
	CheckoutType  domain.CheckoutType
	DepartureDate string
}

// Resolve loads the package for a checkout session and seeds the form's
// travel date with the resolved departure date unless one is already set.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest, form *domain.TravellerForm) (*domain.CheckoutPackage, error) {
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		return nil, domain.Invalid("package slug is required")
	}

	var pkg *domain.CheckoutPackage
	switch req.CheckoutType {
	case "", domain.CheckoutPackageType:
		found, err := s.repo.FindBySlug(ctx, slug)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve package %q", slug)
		}
		p := *found
		p.CheckoutType = domain.CheckoutPackageType
		pkg = &p
	case domain.CheckoutFixedDeparture:
		batch, err := s.repo.FindDepartureBySlug(ctx, slug)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve departure %q", slug)
		}
		p, err := packageFromBatch(batch, req.DepartureDate)
		if err != nil {
			return nil, err
		}
		pkg = &p
	default:
		return nil, domain.Invalid("unknown checkout type " + string(req.CheckoutType))
	}

	if form != nil && pkg.DepartureDate != "" {
		form.TravelDate.Seed(pkg.DepartureDate)
	}
	return pkg, nil
}

// packageFromBatch binds a batch to a departure. A requested date matching an
// open departure with a positive price overrides the batch price; sold out
// departures are ignored.
func packageFromBatch(b *domain.DepartureBatch, requested string) (domain.CheckoutPackage, error) {
	pkg := domain.CheckoutPackage{
		ID:           b.ID,
		Slug:         b.Slug,
		Title:        b.Title,
		Destination:  b.Destination,
		Duration:     b.Duration,
		Image:        b.Image,
		Price:        b.Price,
		PriceType:    b.PriceType,
		CheckoutType: domain.CheckoutFixedDeparture,
	}

	if strings.TrimSpace(requested) == "" {
		if day, ok := domain.CalendarDate(b.DepartureDate); ok {
			pkg.DepartureDate = day
		}
		return pkg, nil
	}

	want, ok := domain.CalendarDate(requested)
	if !ok {
		return domain.CheckoutPackage{}, domain.Invalid("invalid departure date " + requested)
	}
	pkg.DepartureDate = want

	for _, d := range b.Departures {
		day, ok := domain.CalendarDate(d.Date)
		if !ok || day != want || strings.EqualFold(d.Status, domain.DepartureSoldOut) {
			continue
		}
		if d.Price > 0 {
			pkg.Price = d.Price
		}
		break
	}
	return pkg, nil
}
