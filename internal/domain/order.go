package domain

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxReceiptLen = 40

// ReceiptLabel builds the gateway receipt label pkg_<slug>_<unix millis>,
// truncated to the gateway's 40 character limit.
func ReceiptLabel(slug string, now time.Time) string {
	label := "pkg_" + slug + "_" + strconv.FormatInt(now.UnixMilli(), 10)
	if len(label) <= maxReceiptLen {
		return label
	}
	cut := maxReceiptLen
	for cut > 0 && !utf8.RuneStart(label[cut]) {
		cut--
	}
	return label[:cut]
}

func NewAttempt(pkg CheckoutPackage, form TravellerForm, user *User, now time.Time) Attempt {
	return Attempt{
		ID:           uuid.New(),
		Package:      pkg,
		Form:         form,
		User:         user,
		ReceiptLabel: ReceiptLabel(pkg.Slug, now),
		CreatedAt:    now,
	}
}

func (a Attempt) Quote() Quote {
	return NewQuote(a.Package, a.Form.Travellers)
}

func (a Attempt) UserID() string {
	if a.User == nil {
		return ""
	}
	return a.User.ID
}

func (a Attempt) CreateOrderRequest(currency string) CreateOrderRequest {
	q := a.Quote()
	return CreateOrderRequest{
		Amount:        q.Amount,
		Currency:      currency,
		Receipt:       a.ReceiptLabel,
		Name:          a.Form.Name,
		Email:         a.Form.Email,
		Phone:         a.Form.Phone,
		TravelDate:    a.Form.TravelDate.Value(),
		Travellers:    a.Form.Travellers,
		Note:          a.Form.Note,
		UserID:        a.UserID(),
		PackageID:     a.Package.ID,
		PackageSlug:   a.Package.Slug,
		PackageTitle:  a.Package.Title,
		CheckoutType:  a.Package.CheckoutType,
		DepartureDate: a.Package.DepartureDate,
		UnitPrice:     a.Package.Price,
		PriceType:     a.Package.PriceType,
	}
}

func (a Attempt) Snapshot() BookingSnapshot {
	return BookingSnapshot{
		Name:          a.Form.Name,
		Email:         a.Form.Email,
		Phone:         a.Form.Phone,
		TravelDate:    a.Form.TravelDate.Value(),
		Travellers:    a.Form.Travellers,
		Note:          a.Form.Note,
		PackageID:     a.Package.ID,
		PackageSlug:   a.Package.Slug,
		PackageTitle:  a.Package.Title,
		CheckoutType:  a.Package.CheckoutType,
		DepartureDate: a.Package.DepartureDate,
		UnitPrice:     a.Package.Price,
		PriceType:     a.Package.PriceType,
		Amount:        a.Handle.Amount,
	}
}

func (a Attempt) WidgetOptions() WidgetOptions {
	return WidgetOptions{
		Key:         a.Handle.Key,
		Amount:      a.Handle.Amount,
		Currency:    a.Handle.Currency,
		OrderID:     a.Handle.OrderID,
		Name:        a.Package.Title,
		Description: a.Package.Destination,
		Image:       a.Package.Image,
		Prefill: WidgetPrefill{
			Name:    a.Form.Name,
			Email:   a.Form.Email,
			Contact: a.Form.Phone,
		},
		Notes: map[string]string{
			"packageSlug": a.Package.Slug,
			"travelDate":  a.Form.TravelDate.Value(),
			"travellers":  strconv.Itoa(a.Form.Travellers),
		},
	}
}

// Failed builds the failure outcome of this attempt, settled at now.
func (a Attempt) Failed(f WidgetFailure, now time.Time) PaymentOutcome {
	orderID := f.OrderID
	if orderID == "" {
		orderID = a.Handle.OrderID
	}
	reason := f.Description
	if reason == "" {
		reason = f.Reason
	}
	return PaymentOutcome{
		Status:          OutcomeFailure,
		OrderID:         orderID,
		PaymentID:       f.PaymentID,
		PurchaseID:      a.Handle.PurchaseID,
		InternalOrderID: a.Handle.InternalOrderID,
		ReceiptNumber:   a.Handle.ReceiptNumber,
		Amount:          a.Handle.Amount,
		Currency:        a.Handle.Currency,
		TravelDate:      a.Form.TravelDate.Value(),
		Travellers:      a.Form.Travellers,
		UnitLabel:       UnitLabel(a.Package.PriceType),
		Reason:          reason,
		Code:            f.Code,
		Source:          f.Source,
		Step:            f.Step,
		SettledAt:       now,
	}
}

// UserKey identifies the customer across attempts: the account id when
// signed in, the lower-cased email otherwise.
func (a Attempt) UserKey() string {
	if id := a.UserID(); id != "" {
		return id
	}
	return strings.ToLower(strings.TrimSpace(a.Form.Email))
}
