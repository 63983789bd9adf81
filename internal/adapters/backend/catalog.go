package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-checkout/internal/domain"
)

// FindBySlug looks the package up on the primary endpoint and falls back to
// the legacy one when the primary answers non-2xx or with no package record.
func (c *Client) FindBySlug(ctx context.Context, slug string) (*domain.CheckoutPackage, error) {
	esc := url.PathEscape(slug)

	obj, err := c.record(ctx, "find_package", "/packages/slug/"+esc)
	if errors.Is(err, errNoRecord) {
		c.logger.WithField("slug", slug).WithField("error", err.Error()).Debug("primary package lookup failed, trying fallback")
		obj, err = c.record(ctx, "find_package_fallback", "/all-packages/"+esc)
	}
	if errors.Is(err, errNoRecord) {
		return nil, errors.Wrapf(domain.ErrNotFound, "package %q", slug)
	}
	if err != nil {
		return nil, err
	}

	pkg := normalizePackage(obj)
	if pkg.Slug == "" {
		pkg.Slug = slug
	}
	return &pkg, nil
}

func (c *Client) FindDepartureBySlug(ctx context.Context, slug string) (*domain.DepartureBatch, error) {
	obj, err := c.record(ctx, "find_departure", "/fixed-departures/slug/"+url.PathEscape(slug))
	if errors.Is(err, errNoRecord) {
		var se *statusError
		if errors.As(err, &se) && se.Status != http.StatusNotFound {
			return nil, err
		}
		return nil, errors.Wrapf(domain.ErrNotFound, "fixed departure %q", slug)
	}
	if err != nil {
		return nil, err
	}

	batch := normalizeBatch(obj)
	if batch.Slug == "" {
		batch.Slug = slug
	}
	return &batch, nil
}

var errNoRecord = errors.New("no catalog record")

// record fetches path and digs the catalog record out of the answer. A
// non-2xx status or a 2xx body without a record is marked errNoRecord;
// transport errors are returned as they are.
func (c *Client) record(ctx context.Context, op, path string) (map[string]any, error) {
	raw, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return nil, errors.Mark(err, errNoRecord)
		}
		return nil, err
	}
	obj, ok := packageObject(raw)
	if !ok {
		msg := serverMessage(raw)
		if msg == "" {
			msg = "empty record"
		}
		return nil, errors.Wrapf(errNoRecord, "%s: %s", path, msg)
	}
	return obj, nil
}

// packageObject digs the package record out of the shapes the backend
// answers with: bare, {data: ...}, {package: ...} or {data: {package: ...}}.
// An explicit success:false, or an object without id, slug or title, is not
// a record.
func packageObject(raw []byte) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	if ok, present := obj["success"].(bool); present && !ok {
		return nil, false
	}
	for _, key := range []string{"data", "package", "fixedDeparture", "departure"} {
		if inner, ok := obj[key].(map[string]any); ok {
			return packageObject(mustMarshal(inner))
		}
	}
	if str(obj, "_id", "id", "slug", "title", "name") == "" {
		return nil, false
	}
	return obj, true
}

func mustMarshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func normalizePackage(obj map[string]any) domain.CheckoutPackage {
	return domain.CheckoutPackage{
		ID:           str(obj, "_id", "id"),
		Slug:         str(obj, "slug"),
		Title:        str(obj, "title", "name"),
		Destination:  destination(obj),
		Duration:     str(obj, "duration", "days"),
		Image:        image(obj),
		Price:        num(obj, "price", "offerPrice", "basePrice"),
		PriceType:    priceType(str(obj, "priceType", "pricingType")),
		CheckoutType: domain.CheckoutPackageType,
	}
}

func normalizeBatch(obj map[string]any) domain.DepartureBatch {
	b := domain.DepartureBatch{
		ID:            str(obj, "_id", "id"),
		Slug:          str(obj, "slug"),
		Title:         str(obj, "title", "name"),
		Destination:   destination(obj),
		Duration:      str(obj, "duration", "days"),
		Image:         image(obj),
		Price:         num(obj, "price", "offerPrice", "basePrice"),
		PriceType:     priceType(str(obj, "priceType", "pricingType")),
		DepartureDate: str(obj, "departureDate", "startDate"),
	}
	for _, key := range []string{"departures", "batches", "dates"} {
		list, ok := obj[key].([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			d, ok := item.(map[string]any)
			if !ok {
				continue
			}
			b.Departures = append(b.Departures, domain.Departure{
				Date:   str(d, "date", "departureDate", "startDate"),
				Price:  num(d, "price"),
				Status: strings.ToLower(str(d, "status")),
			})
		}
		break
	}
	if b.DepartureDate == "" && len(b.Departures) > 0 {
		b.DepartureDate = b.Departures[0].Date
	}
	return b
}

func str(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func num(obj map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case float64:
			if v > 0 {
				return v
			}
		case string:
			f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v), ",", ""), 64)
			if err == nil && f > 0 {
				return f
			}
		}
	}
	return 0
}

func destination(obj map[string]any) string {
	if d, ok := obj["destination"].(map[string]any); ok {
		return str(d, "name", "title")
	}
	return str(obj, "destination", "location")
}

func image(obj map[string]any) string {
	if s := str(obj, "image", "coverImage", "thumbnail"); s != "" {
		return s
	}
	if list, ok := obj["images"].([]any); ok && len(list) > 0 {
		switch first := list[0].(type) {
		case string:
			return first
		case map[string]any:
			return str(first, "url", "src")
		}
	}
	return ""
}

func priceType(raw string) domain.PriceType {
	if strings.Contains(strings.ToLower(raw), "couple") {
		return domain.PerCouple
	}
	return domain.PerPerson
}
