// Package costing provides the valuation engine: per-product cost policy
// resolution and FIFO / weighted-average / LIFO cost computation.
package costing

import (
	"stockpile/internal/core/apperror"
)

// Method is the closed set of costing methods. The method is resolved once
// per posting and stamped onto the resulting ledger entry so historical
// valuations stay reproducible after a policy change.
type Method string

const (
	MethodFIFO    Method = "FIFO"
	MethodAverage Method = "AVERAGE"
	MethodLIFO    Method = "LIFO"
)

// DefaultMethod applies when a product has no policy row.
const DefaultMethod = MethodAverage

// ParseMethod validates a method string.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodFIFO, MethodAverage, MethodLIFO:
		return Method(s), nil
	}
	return "", apperror.NewValidation("invalid costing method").
		WithDetail("method", s)
}

// UsesLots reports whether the method consumes tracked cost lots.
func (m Method) UsesLots() bool {
	return m == MethodFIFO || m == MethodLIFO
}
