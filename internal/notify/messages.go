package notify

import (
	"fmt"
	"strings"

	"github.com/joao-fontenele/catering-orders/internal/domain"
)

func OrderConfirmation(o *domain.Order) Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order %s.\n", o.Number)
	fmt.Fprintf(&b, "Menu: %s for %d persons on %s.\n", o.MenuTitle, o.Persons, o.ServiceDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Delivery to %s, %s.\n", o.Address, o.City)
	fmt.Fprintf(&b, "Total: %s EUR (delivery %s EUR).\n", o.Total.StringFixed(2), o.DeliveryFee.StringFixed(2))
	if o.LoanRequested {
		b.WriteString("Equipment will be loaned and must be returned after the event.\n")
	}
	return Notification{
		Recipient: o.CustomerEmail,
		Subject:   "Order confirmation " + o.Number,
		Body:      b.String(),
		Kind:      KindOrderConfirmation,
		RelatedID: o.Number,
	}
}

func OrderCancelled(o *domain.Order, reason string) Notification {
	return Notification{
		Recipient: o.CustomerEmail,
		Subject:   "Order cancelled " + o.Number,
		Body:      fmt.Sprintf("Your order %s has been cancelled.\nReason: %s\n", o.Number, reason),
		Kind:      KindOrderCancelled,
		RelatedID: o.Number,
	}
}

// StatusChanged builds the notification due when o enters awaiting-return or completed.
func StatusChanged(o *domain.Order) (Notification, bool) {
	switch o.Status {
	case domain.StatusAwaitingEquipmentReturn:
		deadline := "within 10 days"
		if o.LoanDeadline != nil {
			deadline = "before " + o.LoanDeadline.Format("2006-01-02")
		}
		return Notification{
			Recipient: o.CustomerEmail,
			Subject:   "Equipment return " + o.Number,
			Body:      fmt.Sprintf("Please return the loaned equipment for order %s %s. Late returns incur a penalty.\n", o.Number, deadline),
			Kind:      KindEquipmentReturn,
			RelatedID: o.Number,
		}, true
	case domain.StatusCompleted:
		body := fmt.Sprintf("Your order %s is complete. You can now leave a review.\n", o.Number)
		if o.LatePenalty {
			body += "The equipment was returned late; a penalty applies.\n"
		}
		return Notification{
			Recipient: o.CustomerEmail,
			Subject:   "Order completed " + o.Number,
			Body:      body,
			Kind:      KindOrderCompleted,
			RelatedID: o.Number,
		}, true
	}
	return Notification{}, false
}
