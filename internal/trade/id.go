package trade

import (
	"errors"
	"strconv"
)

// IDKind tells which exchange field a trade id came from.
type IDKind uint8

const (
	KindExchange IDKind = iota + 1
	KindOrder
)

func (k IDKind) String() string {
	switch k {
	case KindExchange:
		return "id"
	case KindOrder:
		return "order"
	default:
		return "none"
	}
}

// ID is the pagination cursor of a trade: the exchange trade id, or the order
// id on exchanges that do not expose one.
type ID struct {
	Kind  IDKind
	Value int64
}

func ExchangeID(v int64) ID { return ID{Kind: KindExchange, Value: v} }

func OrderID(v int64) ID { return ID{Kind: KindOrder, Value: v} }

func (id ID) Valid() bool { return id.Kind == KindExchange || id.Kind == KindOrder }

func (id ID) String() string {
	if !id.Valid() {
		return ""
	}
	return strconv.FormatInt(id.Value, 10)
}

// ErrMissingID is returned when a record carries neither an id nor an order id.
var ErrMissingID = errors.New("trade record has neither id nor order")

// ResolveID applies the id -> order fallback chain.
func ResolveID(id, order *int64) (ID, error) {
	if id != nil {
		return ExchangeID(*id), nil
	}
	if order != nil {
		return OrderID(*order), nil
	}
	return ID{}, ErrMissingID
}
