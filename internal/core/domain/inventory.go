package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// UnassignedZone is used when a scan carries no zone.
	UnassignedZone = "Unassigned"

	// SyntheticProductPrefix marks product names generated from the barcode.
	SyntheticProductPrefix = "Product-"

	DefaultLowStockThreshold = 5
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrInvalidAction = fmt.Errorf("%w: action must be increment or decrement", ErrValidation)
	ErrEmptyBarcode  = fmt.Errorf("%w: barcode is required", ErrValidation)
)

type Action string

const (
	ActionIncrement Action = "increment"
	ActionDecrement Action = "decrement"
)

func (a Action) Valid() bool {
	return a == ActionIncrement || a == ActionDecrement
}

// Apply returns the quantity after applying the action, floored at zero.
func (a Action) Apply(quantity int) int {
	if a == ActionIncrement {
		return quantity + 1
	}
	if quantity <= 0 {
		return 0
	}
	return quantity - 1
}

// InitialQuantity is the quantity of a record created by this action.
func (a Action) InitialQuantity() int {
	if a == ActionIncrement {
		return 1
	}
	return 0
}

type ProductData struct {
	Product string `json:"product"`
	Colour  string `json:"colour"`
	Size    string `json:"size"`
	Zone    string `json:"zone,omitempty"`
}

// CanonicalRecord is the authoritative zone-scoped inventory record.
type CanonicalRecord struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Barcode           string    `json:"barcode"`
	Product           string    `json:"product"`
	Colour            string    `json:"colour"`
	Size              string    `json:"size"`
	Zone              string    `json:"zone"`
	Quantity          int       `json:"quantity"`
	LowStockThreshold int       `json:"lowStockThreshold"`
	Version           int       `json:"-"` // optimistic locking
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (r CanonicalRecord) IsLowStock() bool {
	return r.Quantity <= r.LowStockThreshold
}

// HasSyntheticProduct reports whether the product name is blank or was
// generated from the barcode.
func (r CanonicalRecord) HasSyntheticProduct() bool {
	p := strings.TrimSpace(r.Product)
	return p == "" || strings.HasPrefix(p, SyntheticProductPrefix)
}

type ReconcileRequest struct {
	MutationID  string      `json:"mutationId,omitempty"`
	Action      Action      `json:"action"`
	Barcode     string      `json:"barcode"`
	Zone        string      `json:"zone,omitempty"`
	ProductData ProductData `json:"productData"`
}

// Normalize trims the barcode and validates the request.
func (r *ReconcileRequest) Normalize() error {
	if !r.Action.Valid() {
		return ErrInvalidAction
	}
	r.Barcode = strings.TrimSpace(r.Barcode)
	if r.Barcode == "" {
		return ErrEmptyBarcode
	}
	return nil
}

// TargetZone resolves the zone a request applies to.
func (r ReconcileRequest) TargetZone() string {
	if z := strings.TrimSpace(r.Zone); z != "" {
		return z
	}
	return UnassignedZone
}

type ReconcileResult struct {
	CanonicalRecord
	IsNewItem bool `json:"isNewItem"`
	LowStock  bool `json:"lowStock"`
}

func NewReconcileResult(rec CanonicalRecord, isNew bool) *ReconcileResult {
	return &ReconcileResult{
		CanonicalRecord: rec,
		IsNewItem:       isNew,
		LowStock:        rec.IsLowStock(),
	}
}
