package datamodel

import (
	"strings"
	"time"
)

// Signature is a supervisor sign-off on a production order. Signatures are append-only.
type Signature struct {
	CreatedAt      time.Time `json:"created_at"`
	ID             string    `json:"id"`
	OrderNumber    string    `json:"order_number"`
	SupervisorName string    `json:"supervisor_name"`
	Comment        string    `json:"comment"`
	SupervisorID   int       `json:"supervisor_id"`
}

// Validate checks the fields required to sign an order
func (s Signature) Validate() error {
	if strings.TrimSpace(s.OrderNumber) == "" {
		return NewValidationError("order_number is required")
	}
	if s.SupervisorID <= 0 {
		return NewValidationError("supervisor_id must be positive")
	}
	return nil
}
