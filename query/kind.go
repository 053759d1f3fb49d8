// Package query fetches resolved ledger ranges from the archive (falling back
// to the live node), filters their transactions and assembles the aggregate
// returned by the CLI and the HTTP API.
package query

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownQueryKind reports a query kind other than the supported ones.
	ErrUnknownQueryKind = errors.New("unknown query kind")
	// ErrMissingParameter reports a query kind used without its required input.
	ErrMissingParameter = errors.New("missing parameter")
)

// Kind selects what a range query returns.
type Kind string

const (
	// KindAll returns one item per ledger with its full metadata.
	KindAll Kind = "all"
	// KindTransactions returns every transaction, or those touching an
	// address when one is given.
	KindTransactions Kind = "transactions"
	// KindAddress returns transactions referencing an address.
	KindAddress Kind = "address"
	// KindContract returns transactions invoking or creating a contract.
	KindContract Kind = "contract"
	// KindFunction returns transactions calling a contract function by name.
	KindFunction Kind = "function"
)

// Kinds lists the supported kinds in help order.
var Kinds = []Kind{KindAll, KindTransactions, KindAddress, KindContract, KindFunction}

// ParseKind accepts a kind name case-insensitively. Empty means KindAll.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return KindAll, nil
	}
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q (use all, transactions, address, contract or function)", ErrUnknownQueryKind, s)
}

func (k Kind) String() string { return string(k) }
