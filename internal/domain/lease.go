package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LeaseStatus string

const (
	LeaseStatusPendingApproval LeaseStatus = "pending_approval"
	LeaseStatusActive          LeaseStatus = "active"
	LeaseStatusTerminated      LeaseStatus = "terminated"
	LeaseStatusExpired         LeaseStatus = "expired"
)

type PropertyStatus string

const (
	PropertyAvailable PropertyStatus = "available"
	PropertyRented    PropertyStatus = "rented"
)

type Lease struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	PropertyID  uuid.UUID       `json:"property_id" db:"property_id"`
	TenantID    uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	LandlordID  uuid.UUID       `json:"landlord_id" db:"landlord_id"`
	StartDate   time.Time       `json:"start_date" db:"start_date"`
	EndDate     time.Time       `json:"end_date" db:"end_date"`
	MonthlyRent decimal.Decimal `json:"monthly_rent" db:"monthly_rent"`
	Status      LeaseStatus     `json:"status" db:"status"`
	ApprovedAt  *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy  *uuid.UUID      `json:"approved_by,omitempty" db:"approved_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Approve activates a lease awaiting the landlord's decision.
func (l *Lease) Approve(by uuid.UUID, now time.Time) error {
	if l.Status != LeaseStatusPendingApproval {
		return fmt.Errorf("%w: lease %s is %s", ErrInvalidTransition, l.ID, l.Status)
	}
	l.Status = LeaseStatusActive
	l.ApprovedAt = &now
	l.ApprovedBy = &by
	l.UpdatedAt = now
	return nil
}

func (l *Lease) Terminate(now time.Time) error {
	if l.Status != LeaseStatusActive {
		return fmt.Errorf("%w: lease %s is %s", ErrInvalidTransition, l.ID, l.Status)
	}
	l.Status = LeaseStatusTerminated
	l.UpdatedAt = now
	return nil
}

// Expire closes an active lease whose end date has passed.
func (l *Lease) Expire(now time.Time) error {
	if l.Status != LeaseStatusActive || !l.EndDate.Before(now) {
		return fmt.Errorf("%w: lease %s is %s ending %s", ErrInvalidTransition,
			l.ID, l.Status, l.EndDate.Format("2006-01-02"))
	}
	l.Status = LeaseStatusExpired
	l.UpdatedAt = now
	return nil
}

// Contact is the slice of a user record needed to address a notification.
type Contact struct {
	ID    uuid.UUID `json:"id" db:"id"`
	Name  string    `json:"name" db:"name"`
	Email string    `json:"email" db:"email"`
	Phone string    `json:"phone" db:"phone"`
}

// Property is the slice of a listing the billing flows read and flip.
type Property struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	LandlordID uuid.UUID      `json:"landlord_id" db:"landlord_id"`
	Title      string         `json:"title" db:"title"`
	Status     PropertyStatus `json:"status" db:"status"`
}

type ApproveLeaseRequest struct {
	ApprovedBy string `json:"approved_by" validate:"required,uuid"`
}
