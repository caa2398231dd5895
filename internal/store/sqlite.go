package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jmorrell2146/applyflow/internal/model"
)

// Ensure SQLiteStore implements model.RecordStore.
var _ model.RecordStore = (*SQLiteStore)(nil)

// SQLiteStore is the durable record store: one row per identity key,
// an append-only transition log, and a processed-notice table backing
// scan idempotence.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	identity_key      TEXT PRIMARY KEY,
	source            TEXT NOT NULL,
	company           TEXT NOT NULL,
	title             TEXT NOT NULL,
	location          TEXT NOT NULL DEFAULT '',
	remote            INTEGER NOT NULL DEFAULT 0,
	salary_min        INTEGER NOT NULL DEFAULT 0,
	salary_max        INTEGER NOT NULL DEFAULT 0,
	url               TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	discovered_at     DATETIME NOT NULL,
	relevance_score   REAL NOT NULL DEFAULT 0,
	recipient_email   TEXT NOT NULL DEFAULT '',
	email_verified    INTEGER NOT NULL DEFAULT 0,
	state             TEXT NOT NULL,
	sent_at           DATETIME,
	method            TEXT NOT NULL DEFAULT '',
	resume_variant    TEXT NOT NULL DEFAULT '',
	send_error        TEXT NOT NULL DEFAULT '',
	bounce_reason     TEXT NOT NULL DEFAULT '',
	response_type     TEXT NOT NULL DEFAULT '',
	response_at       DATETIME,
	follow_up_count   INTEGER NOT NULL DEFAULT 0,
	last_follow_up_at DATETIME
);

CREATE TABLE IF NOT EXISTS transitions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	identity_key TEXT NOT NULL,
	from_state   TEXT NOT NULL,
	to_state     TEXT NOT NULL,
	at           DATETIME NOT NULL,
	cause        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transitions_key ON transitions(identity_key);

CREATE TABLE IF NOT EXISTS processed_notices (
	kind        TEXT NOT NULL,
	ident       TEXT NOT NULL,
	occurred_at DATETIME NOT NULL,
	PRIMARY KEY (kind, ident, occurred_at)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and
// ensures the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const recordColumns = `identity_key, source, company, title, location, remote,
	salary_min, salary_max, url, description, discovered_at, relevance_score,
	recipient_email, email_verified, state, sent_at, method,
	resume_variant, send_error, bounce_reason, response_type, response_at,
	follow_up_count, last_follow_up_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.JobRecord, error) {
	var (
		rec            model.JobRecord
		remote         int
		verified       int
		state          string
		bounceReason   string
		responseType   string
		sentAt         sql.NullTime
		responseAt     sql.NullTime
		lastFollowUpAt sql.NullTime
	)
	err := row.Scan(
		&rec.IdentityKey, &rec.Source, &rec.Company, &rec.Title, &rec.Location,
		&remote, &rec.SalaryMin, &rec.SalaryMax, &rec.URL, &rec.Description,
		&rec.DiscoveredAt, &rec.RelevanceScore, &rec.RecipientEmail, &verified,
		&state, &sentAt, &rec.Method, &rec.ResumeVariant,
		&rec.SendError, &bounceReason, &responseType, &responseAt,
		&rec.FollowUpCount, &lastFollowUpAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Remote = remote != 0
	rec.EmailVerified = verified != 0
	rec.State = model.State(state)
	rec.BounceReason = model.BounceReason(bounceReason)
	rec.ResponseType = model.ResponseType(responseType)
	if sentAt.Valid {
		t := sentAt.Time
		rec.SentAt = &t
	}
	if responseAt.Valid {
		t := responseAt.Time
		rec.ResponseAt = &t
	}
	if lastFollowUpAt.Valid {
		t := lastFollowUpAt.Time
		rec.LastFollowUpAt = &t
	}
	return &rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Insert creates a new record. A duplicate identity key is an integrity
// error: intake must have checked for an existing record first.
func (s *SQLiteStore) Insert(rec *model.JobRecord) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO records (`+recordColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.IdentityKey, rec.Source, rec.Company, rec.Title, rec.Location,
			boolInt(rec.Remote), rec.SalaryMin, rec.SalaryMax, rec.URL, rec.Description,
			rec.DiscoveredAt, rec.RelevanceScore, rec.RecipientEmail, boolInt(rec.EmailVerified),
			string(rec.State), rec.SentAt, rec.Method, rec.ResumeVariant,
			rec.SendError, string(rec.BounceReason), string(rec.ResponseType), rec.ResponseAt,
			rec.FollowUpCount, rec.LastFollowUpAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return &model.IntegrityError{IdentityKey: rec.IdentityKey, Reason: "duplicate identity key insert"}
			}
			return fmt.Errorf("inserting record %s: %w", rec.IdentityKey, err)
		}

		if _, err := tx.Exec(
			`INSERT INTO transitions (identity_key, from_state, to_state, at, cause) VALUES (?, '', ?, ?, 'ingested')`,
			rec.IdentityKey, string(rec.State), time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("recording ingest transition for %s: %w", rec.IdentityKey, err)
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	// modernc sqlite reports constraint failures in the error text.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

// Get returns the record for identityKey, or model.ErrNotFound.
func (s *SQLiteStore) Get(identityKey string) (*model.JobRecord, error) {
	row := s.db.QueryRow(`SELECT `+recordColumns+` FROM records WHERE identity_key = ?`, identityKey)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", identityKey, err)
	}
	return rec, nil
}

// List returns all records in the given state, newest first.
func (s *SQLiteStore) List(state model.State) ([]*model.JobRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+recordColumns+` FROM records WHERE state = ? ORDER BY discovered_at DESC`,
		string(state),
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s records: %w", state, err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]*model.JobRecord, error) {
	var recs []*model.JobRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Counts returns the number of records per state.
func (s *SQLiteStore) Counts() (map[model.State]int, error) {
	rows, err := s.db.Query(`SELECT state, COUNT(*) FROM records GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.State]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[model.State(state)] = n
	}
	return counts, rows.Err()
}

// UpdateAttributes refreshes feed-sourced fields and the relevance score
// of a record that has not yet been reviewed out or dispatched. A feed
// address that differs from the stored one replaces it and drops the
// verified flag; verification is per address.
func (s *SQLiteStore) UpdateAttributes(rec *model.JobRecord) error {
	res, err := s.db.Exec(`UPDATE records SET
		company = ?, title = ?, location = ?, remote = ?, salary_min = ?,
		salary_max = ?, url = ?, description = ?, relevance_score = ?,
		email_verified = CASE WHEN ? != '' AND ? != recipient_email THEN 0 ELSE email_verified END,
		recipient_email = CASE WHEN ? != '' THEN ? ELSE recipient_email END
		WHERE identity_key = ? AND state IN (?, ?)`,
		rec.Company, rec.Title, rec.Location, boolInt(rec.Remote), rec.SalaryMin,
		rec.SalaryMax, rec.URL, rec.Description, rec.RelevanceScore,
		rec.RecipientEmail, rec.RecipientEmail,
		rec.RecipientEmail, rec.RecipientEmail,
		rec.IdentityKey, string(model.StateDiscovered), string(model.StatePendingReview),
	)
	if err != nil {
		return fmt.Errorf("updating attributes for %s: %w", rec.IdentityKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating attributes for %s: %w", rec.IdentityKey, err)
	}
	if n == 0 {
		return &model.IntegrityError{IdentityKey: rec.IdentityKey, Reason: "attribute refresh on missing or post-review record"}
	}
	return nil
}

// SetRecipient attaches a contact address to a record.
func (s *SQLiteStore) SetRecipient(identityKey, email string, verified bool) error {
	res, err := s.db.Exec(
		`UPDATE records SET recipient_email = ?, email_verified = ? WHERE identity_key = ?`,
		email, boolInt(verified), identityKey,
	)
	if err != nil {
		return fmt.Errorf("setting recipient for %s: %w", identityKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting recipient for %s: %w", identityKey, err)
	}
	if n == 0 {
		return &model.IntegrityError{IdentityKey: identityKey, Reason: "recipient update on unknown key"}
	}
	return nil
}

// Transition performs a compare-and-set state change with an audit
// entry, in one transaction. The record's current state must equal from
// and (from → to) must be a valid lifecycle edge.
func (s *SQLiteStore) Transition(identityKey string, from, to model.State, cause string) error {
	return s.withTx(func(tx *sql.Tx) error {
		return transitionTx(tx, identityKey, from, to, cause, nil)
	})
}

func (s *SQLiteStore) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// transitionTx runs the CAS inside tx. extra, when non-nil, is an
// additional UPDATE applied to the same row after the state change.
func transitionTx(tx *sql.Tx, identityKey string, from, to model.State, cause string, extra func(tx *sql.Tx) error) error {
	var current string
	err := tx.QueryRow(`SELECT state FROM records WHERE identity_key = ?`, identityKey).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.IntegrityError{IdentityKey: identityKey, Reason: "transition on unknown key"}
	}
	if err != nil {
		return fmt.Errorf("reading state for %s: %w", identityKey, err)
	}

	if model.State(current) != from || !model.CanTransition(from, to) {
		return &model.InvalidTransitionError{IdentityKey: identityKey, From: model.State(current), To: to}
	}

	res, err := tx.Exec(
		`UPDATE records SET state = ? WHERE identity_key = ? AND state = ?`,
		string(to), identityKey, string(from),
	)
	if err != nil {
		return fmt.Errorf("transitioning %s: %w", identityKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transitioning %s: %w", identityKey, err)
	}
	if n == 0 {
		// The read above saw the expected state; losing the CAS here means
		// another writer got between the read and the update.
		return &model.IntegrityError{IdentityKey: identityKey, Reason: "lost compare-and-set race"}
	}

	if _, err := tx.Exec(
		`INSERT INTO transitions (identity_key, from_state, to_state, at, cause) VALUES (?, ?, ?, ?, ?)`,
		identityKey, string(from), string(to), time.Now().UTC(), cause,
	); err != nil {
		return fmt.Errorf("recording transition for %s: %w", identityKey, err)
	}

	if extra != nil {
		return extra(tx)
	}
	return nil
}

// MarkSent transitions approved → sent and records the send metadata.
func (s *SQLiteStore) MarkSent(identityKey string, at time.Time, method, variant string) error {
	return s.withTx(func(tx *sql.Tx) error {
		return transitionTx(tx, identityKey, model.StateApproved, model.StateSent, "dispatch succeeded", func(tx *sql.Tx) error {
			_, err := tx.Exec(
				`UPDATE records SET sent_at = ?, method = ?, resume_variant = ?, send_error = '' WHERE identity_key = ?`,
				at, method, variant, identityKey,
			)
			if err != nil {
				return fmt.Errorf("recording send metadata for %s: %w", identityKey, err)
			}
			return nil
		})
	})
}

// MarkSendFailed transitions approved → send_failed and records the reason.
func (s *SQLiteStore) MarkSendFailed(identityKey, reason string) error {
	return s.withTx(func(tx *sql.Tx) error {
		return transitionTx(tx, identityKey, model.StateApproved, model.StateSendFailed, "dispatch failed", func(tx *sql.Tx) error {
			_, err := tx.Exec(
				`UPDATE records SET send_error = ? WHERE identity_key = ?`,
				reason, identityKey,
			)
			if err != nil {
				return fmt.Errorf("recording send error for %s: %w", identityKey, err)
			}
			return nil
		})
	})
}

// MarkBounced moves a dispatched record to bounced and clears any
// response state attached to the same dispatch. A bounced message was
// never read, so a recorded response for it is a false signal.
func (s *SQLiteStore) MarkBounced(identityKey string, reason model.BounceReason, cause string) (bool, error) {
	var cleared bool
	err := s.withTx(func(tx *sql.Tx) error {
		var current, responseType string
		err := tx.QueryRow(
			`SELECT state, response_type FROM records WHERE identity_key = ?`, identityKey,
		).Scan(&current, &responseType)
		if errors.Is(err, sql.ErrNoRows) {
			return &model.IntegrityError{IdentityKey: identityKey, Reason: "bounce on unknown key"}
		}
		if err != nil {
			return fmt.Errorf("reading state for %s: %w", identityKey, err)
		}

		from := model.State(current)
		if !model.CanTransition(from, model.StateBounced) {
			return &model.InvalidTransitionError{IdentityKey: identityKey, From: from, To: model.StateBounced}
		}
		cleared = responseType != ""

		return transitionTx(tx, identityKey, from, model.StateBounced, cause, func(tx *sql.Tx) error {
			_, err := tx.Exec(
				`UPDATE records SET bounce_reason = ?, response_type = '', response_at = NULL WHERE identity_key = ?`,
				string(reason), identityKey,
			)
			if err != nil {
				return fmt.Errorf("recording bounce for %s: %w", identityKey, err)
			}
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	return cleared, nil
}

// AttachResponse transitions sent → responded and records the
// classification.
func (s *SQLiteStore) AttachResponse(identityKey string, rt model.ResponseType, at time.Time) error {
	return s.withTx(func(tx *sql.Tx) error {
		return transitionTx(tx, identityKey, model.StateSent, model.StateResponded, "reply classified "+string(rt), func(tx *sql.Tx) error {
			_, err := tx.Exec(
				`UPDATE records SET response_type = ?, response_at = ? WHERE identity_key = ?`,
				string(rt), at, identityKey,
			)
			if err != nil {
				return fmt.Errorf("recording response for %s: %w", identityKey, err)
			}
			return nil
		})
	})
}

// PromoteResponse escalates a responded record to interview or closed
// and records the stronger classification.
func (s *SQLiteStore) PromoteResponse(identityKey string, to model.State, rt model.ResponseType, at time.Time) error {
	return s.withTx(func(tx *sql.Tx) error {
		return transitionTx(tx, identityKey, model.StateResponded, to, "response escalated to "+string(rt), func(tx *sql.Tx) error {
			_, err := tx.Exec(
				`UPDATE records SET response_type = ?, response_at = ? WHERE identity_key = ?`,
				string(rt), at, identityKey,
			)
			if err != nil {
				return fmt.Errorf("recording escalation for %s: %w", identityKey, err)
			}
			return nil
		})
	})
}

// RecordFollowUp increments the follow-up counter for a sent record.
func (s *SQLiteStore) RecordFollowUp(identityKey string, at time.Time) error {
	res, err := s.db.Exec(
		`UPDATE records SET follow_up_count = follow_up_count + 1, last_follow_up_at = ?
		WHERE identity_key = ? AND state = ?`,
		at, identityKey, string(model.StateSent),
	)
	if err != nil {
		return fmt.Errorf("recording follow-up for %s: %w", identityKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("recording follow-up for %s: %w", identityKey, err)
	}
	if n == 0 {
		return &model.IntegrityError{IdentityKey: identityKey, Reason: "follow-up on record not in sent state"}
	}
	return nil
}

// DueFollowUps returns sent records with no response, dispatched at
// least minAge ago, with fewer than maxFollowUps follow-ups.
func (s *SQLiteStore) DueFollowUps(minAge time.Duration, maxFollowUps int) ([]*model.JobRecord, error) {
	cutoff := time.Now().Add(-minAge)
	rows, err := s.db.Query(
		`SELECT `+recordColumns+` FROM records
		WHERE state = ? AND response_type = '' AND sent_at IS NOT NULL AND sent_at <= ?
		AND follow_up_count < ?
		ORDER BY sent_at ASC`,
		string(model.StateSent), cutoff, maxFollowUps,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting due follow-ups: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// FindSentByRecipient returns the most recently dispatched, still-live
// record whose dispatch used the given recipient address. Matching is
// by exact address only.
func (s *SQLiteStore) FindSentByRecipient(email string) (*model.JobRecord, error) {
	row := s.db.QueryRow(
		`SELECT `+recordColumns+` FROM records
		WHERE recipient_email = ? AND state IN (?, ?, ?)
		ORDER BY sent_at DESC LIMIT 1`,
		email, string(model.StateSent), string(model.StateResponded), string(model.StateInterview),
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding record for recipient %s: %w", email, err)
	}
	return rec, nil
}

// SeenNotice reports whether a notification identified by (kind, ident,
// occurred-at) has already been processed.
func (s *SQLiteStore) SeenNotice(kind, ident string, at time.Time) (bool, error) {
	var exists int
	err := s.db.QueryRow(
		`SELECT 1 FROM processed_notices WHERE kind = ? AND ident = ? AND occurred_at = ?`,
		kind, ident, at.UTC(),
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking notice %s/%s: %w", kind, ident, err)
	}
	return true, nil
}

// MarkNotice records a notification as processed. Re-marking is a no-op.
func (s *SQLiteStore) MarkNotice(kind, ident string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO processed_notices (kind, ident, occurred_at) VALUES (?, ?, ?)`,
		kind, ident, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("marking notice %s/%s: %w", kind, ident, err)
	}
	return nil
}

// AuditTrail returns the most recent transitions for a record (all
// records when identityKey is empty), newest first.
func (s *SQLiteStore) AuditTrail(identityKey string, limit int) ([]model.TransitionEntry, error) {
	query := `SELECT identity_key, from_state, to_state, at, cause FROM transitions`
	args := []any{}
	if identityKey != "" {
		query += ` WHERE identity_key = ?`
		args = append(args, identityKey)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading audit trail: %w", err)
	}
	defer rows.Close()

	var entries []model.TransitionEntry
	for rows.Next() {
		var e model.TransitionEntry
		var from, to string
		if err := rows.Scan(&e.IdentityKey, &from, &to, &e.At, &e.Cause); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.From = model.State(from)
		e.To = model.State(to)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
