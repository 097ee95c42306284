// Package store persists parsed filings and their facts for later querying.
package store

import (
	"context"
	"time"
)

// Filing is one stored instance document.
type Filing struct {
	ID        string
	Location  string
	Entity    string
	Taxonomy  []string
	FactCount int
	ParsedAt  time.Time
}

// Fact is one stored fact row, flattened for querying: the period and unit
// are rendered strings, dimensional qualifiers live in Dimensions.
type Fact struct {
	ID         string
	FilingID   string
	Concept    string
	Entity     string
	Period     string
	Unit       string
	Value      *float64
	Text       string
	Decimals   *int
	Dimensions map[string]string
}

// FactFilter narrows ListFacts.
type FactFilter struct {
	FilingID string
	Concept  string
	Limit    int
	Offset   int
}

// Store is the persistence interface for parsed filings.
type Store interface {
	Migrate(ctx context.Context) error
	SaveFiling(ctx context.Context, filing *Filing, facts []Fact) error
	GetFiling(ctx context.Context, id string) (*Filing, error)
	FindFilingByLocation(ctx context.Context, location string) (*Filing, error)
	ListFacts(ctx context.Context, filter FactFilter) ([]Fact, error)
	DeleteFiling(ctx context.Context, id string) error
	Close() error
}
