// Package mailer provides implementations of the mail capability. Real
// SMTP/IMAP transport lives outside this system's boundary; these
// implementations cover dry runs and offline operation.
package mailer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jmorrell2146/applyflow/internal/model"
)

// Ensure Log implements model.Mailer.
var _ model.Mailer = (*Log)(nil)

// Log is a mailer that logs sends instead of delivering them and
// reports an empty inbox. Used in dry-run mode.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a mailer that logs each send via slog.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// Send logs the message and fabricates a message ID.
func (m *Log) Send(_ context.Context, to, subject, _ string, attachments []model.Attachment) (string, error) {
	id := uuid.NewString()
	m.logger.Info("send (log mailer)",
		"to", to,
		"subject", subject,
		"attachments", len(attachments),
		"message_id", id,
	)
	return id, nil
}

// PollBounces reports no bounces.
func (m *Log) PollBounces(_ context.Context, _ time.Time) ([]model.BounceNotice, error) {
	return nil, nil
}

// PollMessages reports an empty inbox.
func (m *Log) PollMessages(_ context.Context, _ time.Time) ([]model.InboundMessage, error) {
	return nil, nil
}
