package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrSimulatedOutage = errors.New("notification provider down (simulated)")

// LogNotifier writes confirmations to the log instead of a mail provider.
// Delay and Fail let a deployment rehearse a slow or broken provider.
type LogNotifier struct {
	log   *slog.Logger
	Delay time.Duration
	Fail  bool
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendEnrollmentConfirmation(ctx context.Context, in EnrollmentConfirmation) error {
	if n.Delay > 0 {
		t := time.NewTimer(n.Delay)
		defer t.Stop()

		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if n.Fail {
		return ErrSimulatedOutage
	}

	n.log.InfoContext(ctx, "notification.enrollment_confirmation",
		"email", in.Email,
		"user_id", in.UserID,
		"module_id", in.ModuleID,
		"module_title", in.ModuleTitle,
	)
	return nil
}
