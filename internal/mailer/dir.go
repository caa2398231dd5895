package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmorrell2146/applyflow/internal/model"
)

// Ensure Dir implements model.Mailer.
var _ model.Mailer = (*Dir)(nil)

// Dir is a drop-directory mailer: outbound messages are written as JSON
// under out/, bounce notices are read from bounces/, and inbound
// messages from inbox/. It lets the whole pipeline run end-to-end with
// no network, with an external sync process (or the operator) moving
// files in and out.
type Dir struct {
	root   string
	logger *slog.Logger
}

// outboundMessage is the on-disk format for a sent message.
type outboundMessage struct {
	MessageID   string             `json:"message_id"`
	To          string             `json:"to"`
	Subject     string             `json:"subject"`
	Body        string             `json:"body"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
	SentAt      time.Time          `json:"sent_at"`
}

// NewDir creates a drop-directory mailer rooted at root, creating the
// out/, bounces/, and inbox/ subdirectories as needed.
func NewDir(root string, logger *slog.Logger) (*Dir, error) {
	for _, sub := range []string{"out", "bounces", "inbox"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating mailbox directory %s: %w", sub, err)
		}
	}
	return &Dir{root: root, logger: logger}, nil
}

// Send writes the message as a JSON file under out/.
func (m *Dir) Send(ctx context.Context, to, subject, body string, attachments []model.Attachment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg := outboundMessage{
		MessageID:   uuid.NewString(),
		To:          to,
		Subject:     subject,
		Body:        body,
		Attachments: attachments,
		SentAt:      time.Now().UTC(),
	}

	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding outbound message: %w", err)
	}

	path := filepath.Join(m.root, "out", msg.MessageID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing outbound message: %w", err)
	}

	m.logger.Debug("send (dir mailer)", "to", to, "path", path)
	return msg.MessageID, nil
}

// PollBounces reads bounce notices from bounces/*.json, keeping those
// at or after since.
func (m *Dir) PollBounces(ctx context.Context, since time.Time) ([]model.BounceNotice, error) {
	var notices []model.BounceNotice
	err := m.readDir(ctx, "bounces", func(data []byte, name string) error {
		var notice model.BounceNotice
		if err := json.Unmarshal(data, &notice); err != nil {
			return fmt.Errorf("decoding bounce notice %s: %w", name, err)
		}
		if !notice.OccurredAt.Before(since) {
			notices = append(notices, notice)
		}
		return nil
	})
	return notices, err
}

// PollMessages reads inbound messages from inbox/*.json, keeping those
// at or after since. A message without an explicit ID gets the file
// name, which is stable across scans.
func (m *Dir) PollMessages(ctx context.Context, since time.Time) ([]model.InboundMessage, error) {
	var msgs []model.InboundMessage
	err := m.readDir(ctx, "inbox", func(data []byte, name string) error {
		var msg model.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decoding inbound message %s: %w", name, err)
		}
		if msg.MessageID == "" {
			msg.MessageID = strings.TrimSuffix(name, ".json")
		}
		if !msg.OccurredAt.Before(since) {
			msgs = append(msgs, msg)
		}
		return nil
	})
	return msgs, err
}

func (m *Dir) readDir(ctx context.Context, sub string, fn func(data []byte, name string) error) error {
	dir := filepath.Join(m.root, sub)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		if err := fn(data, entry.Name()); err != nil {
			// One malformed file should not hide the rest of the inbox.
			m.logger.Warn("skipping malformed mailbox file", "file", entry.Name(), "error", err)
		}
	}
	return nil
}
