// internal/notifications/delivery/email.go
package delivery

import (
	"context"
	"fmt"
	"strings"

	"league-notifications/internal/models"
)

// EmailSender is satisfied by *aws.SESClient.
type EmailSender interface {
	SendText(ctx context.Context, to, subject, body string) (string, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// EmailForwarder mails a notification to the user's address.
type EmailForwarder struct {
	sender EmailSender
	users  UserLookup
}

func NewEmailForwarder(sender EmailSender, users UserLookup) *EmailForwarder {
	return &EmailForwarder{sender: sender, users: users}
}

// Send returns sent=false without error when the user has no address.
func (f *EmailForwarder) Send(ctx context.Context, n models.Notification) (bool, error) {
	u, err := f.users.GetUser(ctx, n.UserID)
	if err != nil {
		return false, fmt.Errorf("lookup recipient: %w", err)
	}
	if strings.TrimSpace(u.Email) == "" {
		return false, nil
	}

	if _, err := f.sender.SendText(ctx, u.Email, n.Title, emailBody(n)); err != nil {
		return false, fmt.Errorf("send email: %w", err)
	}
	return true, nil
}

func emailBody(n models.Notification) string {
	var b strings.Builder
	b.WriteString(n.Message)
	if n.ActionURL != nil && *n.ActionURL != "" {
		b.WriteString("\n\n")
		if n.ActionLabel != nil && *n.ActionLabel != "" {
			b.WriteString(*n.ActionLabel)
			b.WriteString(": ")
		}
		b.WriteString(*n.ActionURL)
	}
	return b.String()
}
