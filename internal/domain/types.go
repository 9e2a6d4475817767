// Package domain defines the core data types shared across milkcast: price
// observations, entity keys, and datalake partition granularities.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// MilkType identifies the product variety reported in the SNIIM tables.
type MilkType string

const (
	MilkPasteurized      MilkType = "pasteurized"
	MilkUltraPasteurized MilkType = "ultra-pasteurized"
)

// Granularity selects the daily or monthly datalake.
type Granularity string

const (
	Daily   Granularity = "daily"
	Monthly Granularity = "monthly"
)

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	return g == Daily || g == Monthly
}

// ParseGranularity converts a string such as "daily" into a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToLower(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownGranularity, s)
	}
	return g, nil
}

// DateLayout is the canonical day format used in keys, logs, and CLI flags.
const DateLayout = "2006-01-02"

// PriceRecord is one observed consumer price per liter.
// Price is nil when the published cell was empty or not numeric.
type PriceRecord struct {
	Date     time.Time
	State    string
	City     string
	MilkType MilkType
	Channel  string
	Price    *float64
}

// Key returns the entity group the record belongs to.
func (r PriceRecord) Key() EntityKey {
	return EntityKey{State: r.State, City: r.City, MilkType: r.MilkType, Channel: r.Channel}
}

// HasPrice reports whether the record carries a usable price.
func (r PriceRecord) HasPrice() bool {
	return r.Price != nil
}

// EntityKey is the (state, city, milk type, channel) grain at which price
// series are windowed independently.
type EntityKey struct {
	State    string
	City     string
	MilkType MilkType
	Channel  string
}

// String renders the key as "state|city|type|channel".
func (k EntityKey) String() string {
	return k.State + "|" + k.City + "|" + string(k.MilkType) + "|" + k.Channel
}

// Column names of a PriceRecord, as used in parquet schemas, group-by
// selections and feature dictionaries.
const (
	ColState    = "state"
	ColCity     = "city"
	ColMilkType = "milk_type"
	ColChannel  = "channel"
)

// GroupColumns is the full entity key, in sort order.
var GroupColumns = []string{ColState, ColCity, ColMilkType, ColChannel}

// Column returns the value of a categorical column by name.
func (r PriceRecord) Column(name string) (string, bool) {
	switch name {
	case ColState:
		return r.State, true
	case ColCity:
		return r.City, true
	case ColMilkType:
		return string(r.MilkType), true
	case ColChannel:
		return r.Channel, true
	}
	return "", false
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first day of t's month at midnight UTC.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Float returns a pointer to v, for building records with a price.
func Float(v float64) *float64 {
	return &v
}
