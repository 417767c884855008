// Package billable identifies the external entity a billing record belongs to.
package billable

import (
	"errors"
	"strings"
)

var ErrInvalidBillable = errors.New("invalid_billable")

// Ref is a tagged reference to a billable entity in the host application.
// The kind/id pair is opaque to the billing layer.
type Ref struct {
	Kind string `gorm:"column:billable_kind;type:text;not null;index:idx_billable,priority:1" json:"kind"`
	ID   string `gorm:"column:billable_id;type:text;not null;index:idx_billable,priority:2" json:"id"`
}

func NewRef(kind, id string) Ref {
	return Ref{Kind: strings.TrimSpace(kind), ID: strings.TrimSpace(id)}
}

func (r Ref) Validate() error {
	if strings.TrimSpace(r.Kind) == "" || strings.TrimSpace(r.ID) == "" {
		return ErrInvalidBillable
	}
	return nil
}

func (r Ref) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

func (r Ref) String() string {
	return r.Kind + ":" + r.ID
}
