// Package filters decides which transactions of a ledger a query keeps.
// Every predicate is pure and works on the decoded envelope only.
package filters

import "github.com/stellar/go/xdr"

// TransactionFilter selects transactions by envelope.
type TransactionFilter interface {
	Match(env xdr.TransactionEnvelope) bool
}

// TransactionFilterFunc adapts a function to TransactionFilter.
type TransactionFilterFunc func(env xdr.TransactionEnvelope) bool

func (f TransactionFilterFunc) Match(env xdr.TransactionEnvelope) bool { return f(env) }

// MatchAll keeps every transaction.
var MatchAll TransactionFilter = TransactionFilterFunc(func(xdr.TransactionEnvelope) bool { return true })
