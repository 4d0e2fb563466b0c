// Package event turns decoded code payloads into typed self-checkout
// events and dispatches them to the perception backend, best-effort.
package event

// Kind is the canonical event kind. The numeric values are the wire codes
// carried in the fourth payload field; they are fixed by the backend
// contract and must not be reordered.
type Kind int

const (
	WeighingMismatch     Kind = 0
	StateChange          Kind = 1
	ItemRemoved          Kind = 2
	ItemAdded            Kind = 3
	TransactionCompleted Kind = 4
	TransactionStarted   Kind = 5
	ScanStarted          Kind = 6
	ScanCompleted        Kind = 7

	KindUnknown Kind = -1
)

// KindFromCode maps a wire code to a Kind. The mapping is total over 0..7;
// anything else resolves to KindUnknown and is dropped by the dispatcher.
func KindFromCode(code int) Kind {
	if code < 0 || code > 7 {
		return KindUnknown
	}
	return Kind(code)
}

// Path is the per-kind segment of the backend event URL.
func (k Kind) Path() string {
	switch k {
	case WeighingMismatch:
		return "weighting-scale-not-matched"
	case StateChange:
		return "states"
	case ItemRemoved:
		return "item-removed"
	case ItemAdded:
		return "item-added"
	case TransactionCompleted:
		return "transaction-completed"
	case TransactionStarted:
		return "transaction-started"
	case ScanStarted:
		return "scan-started"
	case ScanCompleted:
		return "scan-completed"
	default:
		return ""
	}
}

func (k Kind) String() string {
	switch k {
	case WeighingMismatch:
		return "WEIGHING_MISMATCH"
	case StateChange:
		return "STATE_CHANGE"
	case ItemRemoved:
		return "ITEM_REMOVED"
	case ItemAdded:
		return "ITEM_ADDED"
	case TransactionCompleted:
		return "TRANSACTION_COMPLETED"
	case TransactionStarted:
		return "TRANSACTION_STARTED"
	case ScanStarted:
		return "SCAN_STARTED"
	case ScanCompleted:
		return "SCAN_COMPLETED"
	default:
		return "unknown"
	}
}
