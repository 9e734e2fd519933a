package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ErrorKind names why a retailer failed validation.
type ErrorKind string

const (
	ReasonNone                 ErrorKind = ""
	ReasonPriceMismatch        ErrorKind = "price_mismatch"
	ReasonOutOfStock           ErrorKind = "out_of_stock"
	ReasonUsedOrRenewed        ErrorKind = "used_or_renewed"
	ReasonPriceDetectionFailed ErrorKind = "price_detection_failed"
	ReasonNoShipping           ErrorKind = "no_shipping"
	ReasonBotDetected          ErrorKind = "bot_detected"
	ReasonPageError            ErrorKind = "page_error"
)

// ValidationResult is one retailer's verdict on one deal.
type ValidationResult struct {
	Valid         bool
	Reason        ErrorKind
	ObservedPrice decimal.Decimal
	InStock       bool
}

// CartResult is what a cart addition reported.
type CartResult struct {
	Success  bool
	Status   string
	Quantity int
	URL      string
}

// Action is the closed set of things the bot records against a retailer.
type Action string

const (
	ActionCartAdded         Action = "cart_added"
	ActionCartAddFailed     Action = "cart_add_failed"
	ActionReadyForManualAdd Action = "ready_for_manual_add"
	ActionReservationFailed Action = "reservation_failed"
	ActionRolledBack        Action = "rolled_back"
	ActionDryRun            Action = "dry_run"
	ActionError             Action = "error"
)

// ProcessingOutcome is the only durable record the bot writes.
type ProcessingOutcome struct {
	ID           string    `firestore:"-"`
	DealCode     string    `firestore:"dealCode"`
	Retailer     Retailer  `firestore:"retailer"`
	Action       Action    `firestore:"action"`
	Quantity     int       `firestore:"quantity"`
	ResultDetail string    `firestore:"resultDetail,omitempty"`
	Timestamp    time.Time `firestore:"timestamp"`
}

// TrackingSubmission is a purchased order waiting to be reported to the board.
type TrackingSubmission struct {
	ID             string          `firestore:"-"`
	DealID         string          `firestore:"dealId"`
	DealCode       string          `firestore:"dealCode"`
	TrackingNumber string          `firestore:"trackingNumber,omitempty"`
	OrderID        string          `firestore:"orderId,omitempty"`
	Quantity       int             `firestore:"quantity"`
	Cost           decimal.Decimal `firestore:"-"` // stored as its string form under "cost"
	Submitted      bool            `firestore:"submitted"`
	SubmittedAt    time.Time       `firestore:"submittedAt,omitempty"`
}
