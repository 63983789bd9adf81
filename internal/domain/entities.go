package domain

import (
	"time"

	"github.com/google/uuid"
)

type PriceType string

const (
	PerPerson PriceType = "per_person"
	PerCouple PriceType = "per_couple"
)

type CheckoutType string

const (
	CheckoutPackageType    CheckoutType = "package"
	CheckoutFixedDeparture CheckoutType = "fixed-departure"
)

const DepartureSoldOut = "soldout"

type CheckoutPackage struct {
	ID            string       `json:"id"`
	Slug          string       `json:"slug"`
	Title         string       `json:"title"`
	Destination   string       `json:"destination,omitempty"`
	Duration      string       `json:"duration,omitempty"`
	Image         string       `json:"image,omitempty"`
	Price         float64      `json:"price"`
	PriceType     PriceType    `json:"priceType"`
	CheckoutType  CheckoutType `json:"checkoutType"`
	DepartureDate string       `json:"departureDate,omitempty"`
}

type Departure struct {
	Date   string  `json:"date"`
	Price  float64 `json:"price"`
	Status string  `json:"status"`
}

type DepartureBatch struct {
	ID            string      `json:"id"`
	Slug          string      `json:"slug"`
	Title         string      `json:"title"`
	Destination   string      `json:"destination,omitempty"`
	Duration      string      `json:"duration,omitempty"`
	Image         string      `json:"image,omitempty"`
	Price         float64     `json:"price"`
	PriceType     PriceType   `json:"priceType"`
	DepartureDate string      `json:"departureDate,omitempty"`
	Departures    []Departure `json:"departures,omitempty"`
}

type TravellerForm struct {
	Name       string
	Email      string
	Phone      string
	TravelDate Override[string]
	Travellers int
	Note       string
}

type User struct {
	ID    string
	Email string
	Name  string
}

type OrderHandle struct {
	OrderID         string `json:"orderId"`
	Key             string `json:"key"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	InternalOrderID string `json:"internalOrderId,omitempty"`
	ReceiptNumber   string `json:"receiptNumber,omitempty"`
	PurchaseID      string `json:"purchaseId,omitempty"`
}

// Attempt is one submission of the checkout. A retry is a new Attempt with
// a new OrderHandle.
type Attempt struct {
	ID           uuid.UUID
	Package      CheckoutPackage
	Form         TravellerForm
	User         *User
	Handle       OrderHandle
	ReceiptLabel string
	CreatedAt    time.Time
}

type WidgetSuccess struct {
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Signature        string `json:"razorpay_signature"`
}

type WidgetFailure struct {
	Description string `json:"description,omitempty"`
	Code        string `json:"code,omitempty"`
	Source      string `json:"source,omitempty"`
	Step        string `json:"step,omitempty"`
	Reason      string `json:"reason,omitempty"`
	OrderID     string `json:"order_id,omitempty"`
	PaymentID   string `json:"payment_id,omitempty"`
}

// WidgetEvent is the single terminal callback of a widget session. Exactly
// one of Success and Failure is set.
type WidgetEvent struct {
	Success *WidgetSuccess `json:"success,omitempty"`
	Failure *WidgetFailure `json:"failure,omitempty"`
}

type WidgetPrefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

type WidgetOptions struct {
	Key         string            `json:"key"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	OrderID     string            `json:"order_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Image       string            `json:"image,omitempty"`
	Prefill     WidgetPrefill     `json:"prefill"`
	Notes       map[string]string `json:"notes,omitempty"`
}

type CreateOrderRequest struct {
	Amount        int64        `json:"amount"`
	Currency      string       `json:"currency"`
	Receipt       string       `json:"receipt"`
	Name          string       `json:"name"`
	Email         string       `json:"email"`
	Phone         string       `json:"phone,omitempty"`
	TravelDate    string       `json:"travelDate"`
	Travellers    int          `json:"travellers"`
	Note          string       `json:"note,omitempty"`
	UserID        string       `json:"userId,omitempty"`
	PackageID     string       `json:"packageId"`
	PackageSlug   string       `json:"packageSlug"`
	PackageTitle  string       `json:"packageTitle"`
	CheckoutType  CheckoutType `json:"checkoutType"`
	DepartureDate string       `json:"departureDate,omitempty"`
	UnitPrice     float64      `json:"unitPrice"`
	PriceType     PriceType    `json:"priceType"`
}

type BookingSnapshot struct {
	Name          string       `json:"name"`
	Email         string       `json:"email"`
	Phone         string       `json:"phone,omitempty"`
	TravelDate    string       `json:"travelDate"`
	Travellers    int          `json:"travellers"`
	Note          string       `json:"note,omitempty"`
	PackageID     string       `json:"packageId"`
	PackageSlug   string       `json:"packageSlug"`
	PackageTitle  string       `json:"packageTitle"`
	CheckoutType  CheckoutType `json:"checkoutType"`
	DepartureDate string       `json:"departureDate,omitempty"`
	UnitPrice     float64      `json:"unitPrice"`
	PriceType     PriceType    `json:"priceType"`
	Amount        int64        `json:"amount"`
}

type VerifyRequest struct {
	GatewayOrderID   string          `json:"razorpay_order_id"`
	GatewayPaymentID string          `json:"razorpay_payment_id"`
	Signature        string          `json:"razorpay_signature"`
	PurchaseID       string          `json:"purchaseId,omitempty"`
	Booking          BookingSnapshot `json:"booking"`
}

type VerifyResult struct {
	Verified        bool   `json:"verified"`
	InternalOrderID string `json:"internalOrderId,omitempty"`
	ReceiptNumber   string `json:"receiptNumber,omitempty"`
	TravelDate      string `json:"travelDate,omitempty"`
	Travellers      int    `json:"travellers,omitempty"`
	UnitLabel       string `json:"unitLabel,omitempty"`
	Message         string `json:"message,omitempty"`
}

// FailureRecord is posted to the mark-failed endpoint. Every field is optional.
type FailureRecord struct {
	PurchaseID        string `json:"purchaseId,omitempty"`
	RazorpayOrderID   string `json:"razorpayOrderId,omitempty"`
	RazorpayPaymentID string `json:"razorpayPaymentId,omitempty"`
	FailureReason     string `json:"failureReason,omitempty"`
	FailureCode       string `json:"failureCode,omitempty"`
	FailureSource     string `json:"failureSource,omitempty"`
	FailureStep       string `json:"failureStep,omitempty"`
}
