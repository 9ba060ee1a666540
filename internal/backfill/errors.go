package backfill

import (
	"errors"
	"fmt"
)

// ErrAbsent marks a download that produced no result at all, as opposed to a
// successful walk that found no trades in the window. Every sentinel below
// wraps it.
var ErrAbsent = errors.New("no trade history")

var (
	ErrSymbolNotFound = fmt.Errorf("%w: symbol not listed", ErrAbsent)
	ErrEmptyHistory   = fmt.Errorf("%w: exchange returned no trades", ErrAbsent)
	ErrStuckCursor    = fmt.Errorf("%w: history does not reach window start", ErrAbsent)
	ErrMalformedTrade = fmt.Errorf("%w: trade without id or order", ErrAbsent)
)

// IsAbsent reports whether err is an absent-result rather than a failure.
func IsAbsent(err error) bool {
	return errors.Is(err, ErrAbsent)
}
