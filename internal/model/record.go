package model

import (
	"context"
	"time"
)

// RawJob is a posting as delivered by a feed, before identity and scoring.
type RawJob struct {
	Company        string `json:"company"`
	Title          string `json:"title"`
	Location       string `json:"location,omitempty"`
	Remote         bool   `json:"remote,omitempty"`
	SalaryMin      int64  `json:"salary_min,omitempty"`
	SalaryMax      int64  `json:"salary_max,omitempty"`
	URL            string `json:"url,omitempty"`
	Description    string `json:"description,omitempty"`
	Source         string `json:"source"`
	RecipientEmail string `json:"recipient_email,omitempty"`
}

// JobRecord is one discovered posting and its full lifecycle state.
// The identity key is unique in the store; records are never deleted.
type JobRecord struct {
	IdentityKey string
	Source      string

	Company      string
	Title        string
	Location     string
	Remote       bool
	SalaryMin    int64
	SalaryMax    int64
	URL          string
	Description  string
	DiscoveredAt time.Time

	RelevanceScore float64

	RecipientEmail string // empty means no known contact
	EmailVerified  bool

	State State

	SentAt        *time.Time
	Method        string // "email", "portal"
	ResumeVariant string
	SendError     string

	BounceReason BounceReason

	ResponseType ResponseType
	ResponseAt   *time.Time

	FollowUpCount  int
	LastFollowUpAt *time.Time
}

// ResponseType classifies an inbound reply attached to a dispatched record.
type ResponseType string

const (
	ResponseNone             ResponseType = ""
	ResponseInterviewRequest ResponseType = "interview_request"
	ResponseRejection        ResponseType = "rejection"
	ResponseNextSteps        ResponseType = "next_steps"
	ResponseAutoAck          ResponseType = "auto_acknowledgment"
	ResponseOther            ResponseType = "other"
)

// BounceReason categorizes a delivery-failure notification.
type BounceReason string

const (
	BounceNone            BounceReason = ""
	BounceInvalidAddress  BounceReason = "invalid_address"
	BounceDomainNotFound  BounceReason = "domain_not_found"
	BounceMailboxFull     BounceReason = "mailbox_full"
	BounceMessageTooLarge BounceReason = "message_too_large"
	BounceUnknown         BounceReason = "unknown"
)

// IngestResult summarizes one ingest batch. Failed items are logged and
// counted, never abort the batch.
type IngestResult struct {
	Inserted int
	Updated  int
	Skipped  int
	Failed   int
}

// DispatchResult reports a successful send.
type DispatchResult struct {
	IdentityKey   string
	MessageID     string
	SentAt        time.Time
	ResumeVariant string
}

// BounceEvent reports one bounce notification matched to a record.
type BounceEvent struct {
	IdentityKey     string
	Recipient       string
	Reason          BounceReason
	OccurredAt      time.Time
	ClearedResponse bool // a previously attached response was invalidated
}

// ClassifiedResponse reports one inbound message attached to a record.
type ClassifiedResponse struct {
	IdentityKey string
	Type        ResponseType
	From        string
	Subject     string
	OccurredAt  time.Time
	Escalated   bool // promoted an already-responded record
}

// TransitionEntry is one row of the append-only audit log.
type TransitionEntry struct {
	IdentityKey string
	From        State
	To          State
	At          time.Time
	Cause       string
}

// RecordStore is the single source of truth for job records. All state
// changes go through compare-and-set transitions executed as one
// transaction per record.
type RecordStore interface {
	Insert(rec *JobRecord) error
	Get(identityKey string) (*JobRecord, error)
	List(state State) ([]*JobRecord, error)
	Counts() (map[State]int, error)

	// UpdateAttributes refreshes feed-sourced fields and the relevance
	// score of a pre-terminal record in place.
	UpdateAttributes(rec *JobRecord) error
	SetRecipient(identityKey, email string, verified bool) error

	// Transition performs a compare-and-set state change and appends an
	// audit entry. Unknown keys are integrity errors; a state mismatch is
	// an InvalidTransitionError.
	Transition(identityKey string, from, to State, cause string) error

	MarkSent(identityKey string, at time.Time, method, variant string) error
	MarkSendFailed(identityKey, reason string) error
	// MarkBounced moves a sent-or-later record to bounced and clears any
	// attached response state.
	MarkBounced(identityKey string, reason BounceReason, cause string) (cleared bool, err error)
	AttachResponse(identityKey string, rt ResponseType, at time.Time) error
	// PromoteResponse escalates a responded record to interview or closed
	// and records the stronger classification.
	PromoteResponse(identityKey string, to State, rt ResponseType, at time.Time) error
	RecordFollowUp(identityKey string, at time.Time) error

	DueFollowUps(minAge time.Duration, maxFollowUps int) ([]*JobRecord, error)
	FindSentByRecipient(email string) (*JobRecord, error)

	// SeenNotice / MarkNotice deduplicate inbound notifications by
	// (kind, identifier, occurred-at) so re-scans are idempotent.
	SeenNotice(kind, ident string, at time.Time) (bool, error)
	MarkNotice(kind, ident string, at time.Time) error

	AuditTrail(identityKey string, limit int) ([]TransitionEntry, error)
}

// Attachment is a named file included with an outbound message.
type Attachment struct {
	Name string
	Path string
}

// BounceNotice is a delivery-failure notification from the mail transport.
type BounceNotice struct {
	Recipient  string    `json:"recipient"`
	ReasonText string    `json:"reason_text"`
	OccurredAt time.Time `json:"occurred_at"`
}

// InboundMessage is one message from the mailer inbox.
type InboundMessage struct {
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	OccurredAt time.Time `json:"occurred_at"`
	MessageID  string    `json:"message_id"`
}

// Mailer is the outbound/inbound mail capability. Send failures are
// *TransportError; polling failures are retried on the next scan.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string, attachments []Attachment) (messageID string, err error)
	PollBounces(ctx context.Context, since time.Time) ([]BounceNotice, error)
	PollMessages(ctx context.Context, since time.Time) ([]InboundMessage, error)
}

// RenderedContent is the material produced for one outbound application.
type RenderedContent struct {
	Subject       string
	Body          string
	ResumeVariant string
	Attachments   []Attachment
}

// Renderer produces application materials for a record. The follow-up
// variant reuses the original subject threading.
type Renderer interface {
	Render(rec *JobRecord) (RenderedContent, error)
	RenderFollowUp(rec *JobRecord) (RenderedContent, error)
}

// Feed produces raw job postings for intake.
type Feed interface {
	Name() string
	Fetch(ctx context.Context) ([]RawJob, error)
}
