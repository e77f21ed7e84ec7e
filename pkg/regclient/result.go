package regclient

import "fmt"

// Kind tags the outcome of a procedure call. Every caller switches on it instead of
// probing optional fields.
type Kind string

const (
	KindOK               Kind = "OK"
	KindDuplicatePhone   Kind = "DUPLICATE_PHONE"
	KindCapacityExceeded Kind = "CAPACITY_EXCEEDED"
	KindSlotsFull        Kind = "SLOTS_FULL"
	KindNotFound         Kind = "NOT_FOUND"
	KindValidation       Kind = "VALIDATION"
	KindPeriodNotOpen    Kind = "PERIOD_NOT_OPEN"
	KindRateLimited      Kind = "RATE_LIMITED"
	// KindTransport means the outcome is unknown: the request may or may not have
	// committed.
	KindTransport Kind = "TRANSPORT"
)

// Result is the outcome of submit, update or cancel.
type Result struct {
	Kind         Kind
	Registration *Registration
	// FullSlots names exactly the slots that lost the race on SLOTS_FULL.
	FullSlots []string
	Message   string
	// Recovered is set when a transport failure was resolved by looking the
	// registration up afterwards.
	Recovered bool
	Err       error
}

// OK reports success.
func (r Result) OK() bool { return r.Kind == KindOK }

func (r Result) String() string {
	if r.Message != "" {
		return fmt.Sprintf("%s: %s", r.Kind, r.Message)
	}
	return string(r.Kind)
}

func kindFromCode(code string) Kind {
	switch code {
	case "":
		return KindOK
	case "VALIDATION", "VALIDATION_ERROR":
		return KindValidation
	case "NOT_FOUND":
		return KindNotFound
	case "TOO_MANY_REQUESTS":
		return KindRateLimited
	case string(KindDuplicatePhone), string(KindCapacityExceeded), string(KindSlotsFull), string(KindPeriodNotOpen):
		return Kind(code)
	default:
		return KindValidation
	}
}

func transport(err error) Result {
	return Result{Kind: KindTransport, Message: err.Error(), Err: err}
}
