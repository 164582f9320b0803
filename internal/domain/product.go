package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrProductNotFound is returned when no product matches the requested id.
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidProduct is returned when a product fails validation.
	ErrInvalidProduct = errors.New("invalid product")
)

// LocalIDBase is the lowest id a locally created record may carry.
const LocalIDBase int64 = 1000

// Source tells where a record originates from.
type Source string

const (
	SourceAPI   Source = "api"   // Fetched from the remote catalog, read-only
	SourceLocal Source = "local" // Created locally and persisted in the KV store
)

// Product is a catalog entry as served by the remote catalog API.
type Product struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	Description string  `json:"description"`
}

// Validate checks the fields a product form requires.
func (p Product) Validate() error {
	var errs []error

	if strings.TrimSpace(p.Title) == "" {
		errs = append(errs, errors.New("title is required"))
	}

	if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price < 0 {
		errs = append(errs, fmt.Errorf("price must be a finite number >= 0, got %v", p.Price))
	}

	if strings.TrimSpace(p.Category) == "" {
		errs = append(errs, errors.New("category is required"))
	}

	if strings.TrimSpace(p.Image) == "" {
		errs = append(errs, errors.New("image is required"))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidProduct}, errs...)...)
	}

	return nil
}

// ProductItem is a Product tagged with its origin.
type ProductItem struct {
	Product

	Source Source `json:"source"`
}

// IsLocal reports whether the item was created locally.
func (p ProductItem) IsLocal() bool {
	return p.Source == SourceLocal
}

// ProductsState is a snapshot of the product store.
type ProductsState struct {
	Items   []ProductItem `json:"items"`
	Loading bool          `json:"loading"`
	Error   string        `json:"error,omitempty"`
}
