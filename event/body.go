package event

import (
	"sync"

	"github.com/google/uuid"
)

// Body is one of the eight kind-specific request bodies. The concrete type
// decides the JSON shape; Kind ties it back to its URL path.
type Body interface {
	Kind() Kind
}

// base is the triple shared by every body.
type base struct {
	TransactionID   string `json:"transaction_id"`
	TransactionType string `json:"transaction_type"`
	Timestamp       int64  `json:"timestamp"`
	ServerTimestamp int64  `json:"server_timestamp"`
}

type TransactionStartedBody struct {
	base
	Status string `json:"status"`
}

func (TransactionStartedBody) Kind() Kind { return TransactionStarted }

type TransactionCompletedBody struct {
	base
	TotalItems int    `json:"total_items"`
	Status     string `json:"status"`
}

func (TransactionCompletedBody) Kind() Kind { return TransactionCompleted }

type ItemAddedBody struct {
	base
	ItemID        string   `json:"item_id"`
	Barcode       string   `json:"barcode"`
	Name          string   `json:"name"`
	Quantity      int      `json:"quantity"`
	AddedMethod   string   `json:"added_method"`
	IsKitchenItem bool     `json:"is_kitchen_item"`
	Price         *float64 `json:"price"`
	Currency      *string  `json:"currency"`
}

func (ItemAddedBody) Kind() Kind { return ItemAdded }

type ItemRemovedBody struct {
	base
	ItemID        string `json:"item_id"`
	Barcode       string `json:"barcode"`
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	RemovedUser   string `json:"removed_user"`
	IsKitchenItem bool   `json:"is_kitchen_item"`
}

func (ItemRemovedBody) Kind() Kind { return ItemRemoved }

type StateChangeBody struct {
	base
	UIState string `json:"ui_state"`
	Reason  string `json:"reason"`
}

func (StateChangeBody) Kind() Kind { return StateChange }

type ScanStartedBody struct {
	base
}

func (ScanStartedBody) Kind() Kind { return ScanStarted }

type ScanCompletedBody struct {
	base
	TotalItems int `json:"total_items"`
}

func (ScanCompletedBody) Kind() Kind { return ScanCompleted }

type WeighingMismatchBody struct {
	base
	ItemID         string  `json:"item_id"`
	Name           string  `json:"name"`
	Barcode        string  `json:"barcode"`
	DetectedWeight float64 `json:"detected_weight"`
	ExpectedWeight float64 `json:"expected_weight"`
}

func (WeighingMismatchBody) Kind() Kind { return WeighingMismatch }

// Builder owns the active transaction id. Exactly one id exists at any
// instant; it rotates only when a TRANSACTION_STARTED event is built, and
// the new id is already in place before that event's own body is filled.
type Builder struct {
	mu    sync.Mutex
	txID  string
	newID func() string
}

func NewBuilder() *Builder {
	return &Builder{
		txID:  uuid.NewString(),
		newID: uuid.NewString,
	}
}

// ActiveTransaction returns the current transaction id.
func (b *Builder) ActiveTransaction() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.txID
}

// Build produces the body for the given kind at the given simulated
// timestamp. Returns ok=false only for KindUnknown; the switch over the
// eight kinds is exhaustive.
func (b *Builder) Build(k Kind, timestamp int64) (Body, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if k == TransactionStarted {
		b.txID = b.newID()
	}
	bs := base{
		TransactionID:   b.txID,
		TransactionType: "pending",
		Timestamp:       timestamp,
		ServerTimestamp: timestamp,
	}

	switch k {
	case TransactionStarted:
		return TransactionStartedBody{base: bs, Status: "started"}, true
	case TransactionCompleted:
		return TransactionCompletedBody{base: bs, TotalItems: 0, Status: "ended"}, true
	case ItemAdded:
		return ItemAddedBody{
			base:        bs,
			ItemID:      b.newID(),
			Barcode:     "1234567890123",
			Name:        "Apple",
			Quantity:    1,
			AddedMethod: "scanner",
		}, true
	case ItemRemoved:
		return ItemRemovedBody{
			base:        bs,
			ItemID:      b.newID(),
			Barcode:     "1234567890123",
			Name:        "Apple",
			Quantity:    1,
			RemovedUser: "staff",
		}, true
	case StateChange:
		return StateChangeBody{base: bs, UIState: "staff_mode_on", Reason: "simulation"}, true
	case ScanStarted:
		return ScanStartedBody{base: bs}, true
	case ScanCompleted:
		return ScanCompletedBody{base: bs, TotalItems: 0}, true
	case WeighingMismatch:
		return WeighingMismatchBody{
			base:           bs,
			ItemID:         "aabb513",
			Name:           "default",
			Barcode:        "aabbabc",
			DetectedWeight: 50.0,
			ExpectedWeight: 100.0,
		}, true
	default:
		return nil, false
	}
}
