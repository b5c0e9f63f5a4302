package notify

import (
	"fmt"
	"time"
)

// PasswordReset carries the raw reset token. Only its hash is stored with the account.
func PasswordReset(email, userID, token string, expires time.Time) Notification {
	return Notification{
		Recipient: email,
		Subject:   "Reset your password",
		Body: fmt.Sprintf("A password reset was requested for this address.\nReset token: %s\nThe token expires at %s.\n",
			token, expires.UTC().Format(time.RFC3339)),
		Kind:      KindPasswordReset,
		RelatedID: userID,
	}
}

func EmployeeInvite(email, firstName, userID, token string, expires time.Time) Notification {
	return Notification{
		Recipient: email,
		Subject:   "Your staff account",
		Body: fmt.Sprintf("Hello %s,\nA staff account was opened for you. Choose a password with this token: %s\nThe token expires at %s.\n",
			firstName, token, expires.UTC().Format(time.RFC3339)),
		Kind:      KindEmployeeInvite,
		RelatedID: userID,
	}
}

func EmployeeCreated(email, firstName, userID string) Notification {
	return Notification{
		Recipient: email,
		Subject:   "Your staff account",
		Body:      fmt.Sprintf("Hello %s,\nA staff account was opened for you. Sign in with the password you were given.\n", firstName),
		Kind:      KindEmployeeCreated,
		RelatedID: userID,
	}
}
