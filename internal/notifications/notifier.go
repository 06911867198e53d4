package notifications

import "context"

type EnrollmentConfirmation struct {
	Email       string
	UserID      string
	ModuleID    string
	ModuleTitle string
}

type Notifier interface {
	SendEnrollmentConfirmation(ctx context.Context, in EnrollmentConfirmation) error
}
