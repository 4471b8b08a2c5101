// Package currency converts submitted amounts into the reporting currency
// using a rate snapshot supplied at construction. It performs no I/O and
// never consults the clock, so conversions are deterministic for a given
// snapshot.
package currency

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"expense-approval/internal/apperr"
)

// Snapshot maps an ISO 4217 code to its rate into the reporting currency.
// A snapshot is taken as-of some point in time by the caller; this package
// does not refresh it.
type Snapshot map[string]float64

// Converter normalizes amounts into a single reporting currency.
type Converter struct {
	reporting string
	rates     Snapshot
}

// NewConverter builds a converter for the given reporting currency and rate
// snapshot. Codes are case-insensitive. The reporting currency itself is
// always supported at rate 1, whether or not the snapshot lists it.
func NewConverter(reporting string, rates Snapshot) (*Converter, error) {
	reporting = strings.ToUpper(strings.TrimSpace(reporting))
	if reporting == "" {
		return nil, fmt.Errorf("reporting currency is required")
	}

	normalized := make(Snapshot, len(rates)+1)
	for code, rate := range rates {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" || rate <= 0 {
			return nil, fmt.Errorf("invalid rate %v for %q", rate, code)
		}
		normalized[code] = rate
	}
	normalized[reporting] = 1

	return &Converter{reporting: reporting, rates: normalized}, nil
}

// Reporting returns the reporting currency code.
func (c *Converter) Reporting() string {
	return c.reporting
}

// Supports reports whether code belongs to the supported set.
func (c *Converter) Supports(code string) bool {
	_, ok := c.rates[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// Supported returns the supported currency codes in sorted order.
func (c *Converter) Supported() []string {
	codes := make([]string, 0, len(c.rates))
	for code := range c.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Normalize converts amount from the given currency into the reporting
// currency, rounded to two decimal places. It fails with
// apperr.ErrUnsupportedCurrency if the code is not in the snapshot.
func (c *Converter) Normalize(amount float64, from string) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	rate, ok := c.rates[from]
	if !ok {
		return 0, fmt.Errorf("%w: %q", apperr.ErrUnsupportedCurrency, from)
	}
	return math.Round(amount*rate*100) / 100, nil
}
