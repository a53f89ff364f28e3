package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// PayableKind tags which entity a payment settles.
type PayableKind string

const (
	PayableAppointment PayableKind = "appointment"
	PayableInvoice     PayableKind = "invoice"
)

// PayableRef is the tagged reference from a Payment to the entity it settles.
type PayableRef struct {
	Kind PayableKind `json:"payable_type" db:"payable_type"`
	ID   uuid.UUID   `json:"payable_id" db:"payable_id"`
}

func AppointmentRef(id uuid.UUID) PayableRef {
	return PayableRef{Kind: PayableAppointment, ID: id}
}

func InvoiceRef(id uuid.UUID) PayableRef {
	return PayableRef{Kind: PayableInvoice, ID: id}
}

// ParsePayableKind validates an inbound payable type.
func ParsePayableKind(s string) (PayableKind, error) {
	switch PayableKind(s) {
	case PayableAppointment, PayableInvoice:
		return PayableKind(s), nil
	default:
		return "", fmt.Errorf("unknown payable type %q", s)
	}
}

func (r PayableRef) String() string {
	return string(r.Kind) + ":" + r.ID.String()
}
