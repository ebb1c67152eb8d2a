package notify

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleSender logs messages instead of delivering them. It is the default
// provider for local development and for environments without a mail key.
type ConsoleSender struct {
	logger *zap.Logger
}

func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSender{logger: logger}
}

func (s *ConsoleSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("notification",
		zap.String("to", msg.ToEmail),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}
