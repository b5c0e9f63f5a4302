package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

func ParseReviewStatus(s string) (ReviewStatus, error) {
	switch ReviewStatus(s) {
	case ReviewPending, ReviewApproved, ReviewRejected:
		return ReviewStatus(s), nil
	}
	return "", Validationf("unknown review status %q", s)
}

type Review struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	OrderNumber string       `json:"order_number" db:"order_number"`
	CustomerID  uuid.UUID    `json:"customer_id" db:"customer_id"`
	Rating      int          `json:"rating" db:"rating"`
	Comment     *string      `json:"comment,omitempty" db:"comment"`
	Status      ReviewStatus `json:"status" db:"status"`
	ModeratedBy *uuid.UUID   `json:"moderated_by,omitempty" db:"moderated_by"`
	ModeratedAt *time.Time   `json:"moderated_at,omitempty" db:"moderated_at"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}
