package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmorrell2146/applyflow/internal/model"
)

// SendLimiter enforces a minimum delay between consecutive outbound
// sends, to respect mailer provider limits. This is a policy knob, not
// a correctness requirement.
type SendLimiter struct {
	mu       sync.Mutex
	lastSend time.Time
	minDelay time.Duration
}

// NewSendLimiter creates a limiter enforcing minDelay between sends.
func NewSendLimiter(minDelay time.Duration) *SendLimiter {
	return &SendLimiter{minDelay: minDelay}
}

// Wait blocks until enough time has passed since the last send.
// Returns an error if the context is cancelled while waiting.
func (l *SendLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()

	if l.lastSend.IsZero() {
		// First send, no wait needed.
		l.lastSend = now
		l.mu.Unlock()
		return nil
	}

	elapsed := now.Sub(l.lastSend)
	if elapsed >= l.minDelay {
		l.lastSend = now
		l.mu.Unlock()
		return nil
	}

	// Need to wait for the remainder.
	remaining := l.minDelay - elapsed
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("send limiter wait: %w", ctx.Err())
	case <-time.After(remaining):
	}

	// Record the actual time after waiting.
	l.mu.Lock()
	l.lastSend = time.Now()
	l.mu.Unlock()

	return nil
}

// Ensure Mailer implements model.Mailer.
var _ model.Mailer = (*Mailer)(nil)

// Mailer is a decorator that enforces the minimum send delay before
// delegating to the wrapped mailer. Polling is not rate limited.
type Mailer struct {
	inner   model.Mailer
	limiter *SendLimiter
}

// NewMailer wraps a mailer with send rate limiting. All dispatch paths
// should share the same limiter instance.
func NewMailer(inner model.Mailer, limiter *SendLimiter) *Mailer {
	return &Mailer{inner: inner, limiter: limiter}
}

// Send waits for the limiter to allow a send, then delegates.
func (m *Mailer) Send(ctx context.Context, to, subject, body string, attachments []model.Attachment) (string, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return m.inner.Send(ctx, to, subject, body, attachments)
}

func (m *Mailer) PollBounces(ctx context.Context, since time.Time) ([]model.BounceNotice, error) {
	return m.inner.PollBounces(ctx, since)
}

func (m *Mailer) PollMessages(ctx context.Context, since time.Time) ([]model.InboundMessage, error) {
	return m.inner.PollMessages(ctx, since)
}
