package book

import "fmt"

// SymbolMismatchError reports an update addressed to a different symbol than
// the one this book tracks. The update is dropped; the book is unchanged.
type SymbolMismatchError struct {
	Book   string
	Update string
}

func (e *SymbolMismatchError) Error() string {
	return fmt.Sprintf("symbol mismatch: book tracks %s, update is for %s", e.Book, e.Update)
}

// StaleUpdateError reports an update whose id is not strictly greater than
// the last applied id. Equal ids count as duplicates and are dropped too.
type StaleUpdateError struct {
	LastApplied uint64
	Incoming    uint64
}

func (e *StaleUpdateError) Error() string {
	return fmt.Sprintf("stale update: id %d not after last applied %d", e.Incoming, e.LastApplied)
}
