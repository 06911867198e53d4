package jobs

import "time"

// EnrollmentConfirmationPayload carries everything the notifier needs so the
// worker never has to read modules or users back from the DB.
type EnrollmentConfirmationPayload struct {
	ModuleID    string    `json:"moduleId"`
	ModuleTitle string    `json:"moduleTitle"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	RequestedAt time.Time `json:"requestedAt"`
}

// IdempotencyKey makes a second enqueue for the same pair a unique violation.
func (p EnrollmentConfirmationPayload) IdempotencyKey() string {
	return string(JobEnrollmentConfirmation) + ":" + p.ModuleID + ":" + p.UserID
}
