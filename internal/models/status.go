package models

import "fmt"

// OrderStatus is the closed set of order lifecycle states.
type OrderStatus uint8

const (
	StatusPendingPayment OrderStatus = iota
	StatusConfirmed
	StatusShipping
	StatusDelivered
	StatusCancelled

	statusCount
)

// NumStatuses sizes per-status lookup tables. A table declared as
// [...]T with one entry per status can be checked against it at compile time.
const NumStatuses = int(statusCount)

var statusNames = [...]string{
	StatusPendingPayment: "PENDING_PAYMENT",
	StatusConfirmed:      "CONFIRMED",
	StatusShipping:       "SHIPPING",
	StatusDelivered:      "DELIVERED",
	StatusCancelled:      "CANCELLED",
}

var _ = [1]struct{}{}[len(statusNames)-NumStatuses]

func AllStatuses() []OrderStatus {
	out := make([]OrderStatus, 0, NumStatuses)
	for s := OrderStatus(0); s < statusCount; s++ {
		out = append(out, s)
	}
	return out
}

func (s OrderStatus) Valid() bool { return s < statusCount }

func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("OrderStatus(%d)", uint8(s))
	}
	return statusNames[s]
}

func ParseStatus(v string) (OrderStatus, error) {
	for i, name := range statusNames {
		if name == v {
			return OrderStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown order status %q", v)
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid order status %d", uint8(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *OrderStatus) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
