// Package notify records outbound customer notifications. Nothing is sent;
// the email_log table is the delivery channel.
package notify

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type Kind string

const (
	KindOrderConfirmation Kind = "order_confirmation"
	KindOrderCancelled    Kind = "order_cancelled"
	KindEquipmentReturn   Kind = "equipment_return"
	KindOrderCompleted    Kind = "order_completed"
	KindPasswordReset     Kind = "password_reset"
	KindEmployeeInvite    Kind = "employee_invite"
	KindEmployeeCreated   Kind = "employee_created"
)

type Notification struct {
	Recipient string `db:"to_email"`
	Subject   string `db:"subject"`
	Body      string `db:"body"`
	Kind      Kind   `db:"kind"`
	RelatedID string `db:"related_id"`
}

type Recorder struct {
	db *sqlx.DB
}

func NewRecorder(db *sqlx.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) Record(ctx context.Context, n Notification) error {
	if _, err := r.db.NamedExecContext(ctx, `
		INSERT INTO email_log (to_email, subject, body, kind, related_id)
		VALUES (:to_email, :subject, :body, :kind, :related_id)
	`, n); err != nil {
		return fmt.Errorf("record %s notification: %w", n.Kind, err)
	}
	return nil
}
