package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/idorecall/referral-service/internal/domain/user"
	"github.com/idorecall/referral-service/pkg/logger"
)

// LogEnrollmentNotifier implements user.EnrollmentNotifier by logging
// the event. A real deployment swaps this for an email or push sender;
// the contract stays fire-and-forget either way.
type LogEnrollmentNotifier struct {
	log *logger.Logger
}

func NewLogEnrollmentNotifier(log *logger.Logger) *LogEnrollmentNotifier {
	return &LogEnrollmentNotifier{
		log: log,
	}
}

// SendEnrollmentNotification records the enrollment. Failures are not
// surfaced: the caller never blocks on notification delivery.
func (n *LogEnrollmentNotifier) SendEnrollmentNotification(ctx context.Context, userID string) {
	n.log.Info("enrollment notification sent",
		logger.UserID(userID),
		logger.Field{Key: "notification_id", Value: uuid.New().String()},
	)
}

var _ user.EnrollmentNotifier = (*LogEnrollmentNotifier)(nil)
