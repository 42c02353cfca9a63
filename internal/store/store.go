// Package store persists editing sessions so that the web and Lambda front
// ends can list, resume and audit them.
//
// Records for a session share a partition key (SESSION#{sessionId}). Sort
// keys distinguish record types: META holds the session summary and
// HISTORY#{step} holds one generated edit each. Every record carries an
// expiresAt TTL of 24 hours.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// SessionTTL is the time-to-live for every session record.
const SessionTTL = 24 * time.Hour

// ErrInlineTooLarge rejects a record whose inline image would overflow the
// DynamoDB item limit. Such images belong in a bucket, referenced by key.
var ErrInlineTooLarge = errors.New("inline image too large for the session table")

// SessionStore is the persistence interface for editing sessions. Each
// method is safe for concurrent use.
//
// Get methods return (nil, nil) when the record does not exist. Put methods
// perform full-item replacement (upsert semantics).
type SessionStore interface {
	// PutSession creates or replaces a session summary.
	PutSession(ctx context.Context, session *Session) error

	// GetSession retrieves a session summary. Returns nil, nil if not found.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// UpdateSessionPhase sets the phase and history cursor without
	// overwriting other fields.
	UpdateSessionPhase(ctx context.Context, sessionID, phase string, historyIndex int) error

	// PutHistory creates or replaces the record for rec.Step.
	PutHistory(ctx context.Context, sessionID string, rec *HistoryRecord) error

	// GetHistory returns all history records ordered by step.
	GetHistory(ctx context.Context, sessionID string) ([]*HistoryRecord, error)

	// TruncateHistory deletes history records with Step >= fromStep and
	// returns the deleted steps.
	TruncateHistory(ctx context.Context, sessionID string, fromStep int) ([]int, error)

	// DeleteSession removes the session summary and its history.
	DeleteSession(ctx context.Context, sessionID string) error
}

// Session is the session summary (SK = META). ID is derived from PK.
//
// Source references the uploaded image the same way HistoryRecord.Result
// references a result. Analysis is the JSON-encoded analysis, if any.
type Session struct {
	ID           string          `json:"id" dynamodbav:"-"`
	Phase        string          `json:"phase" dynamodbav:"phase"`
	Filename     string          `json:"filename,omitempty" dynamodbav:"filename,omitempty"`
	MIMEType     string          `json:"mimeType,omitempty" dynamodbav:"mimeType,omitempty"`
	Width        int             `json:"width,omitempty" dynamodbav:"width,omitempty"`
	Height       int             `json:"height,omitempty" dynamodbav:"height,omitempty"`
	Source       string          `json:"source,omitempty" dynamodbav:"source,omitempty"`
	Analysis     json.RawMessage `json:"analysis,omitempty" dynamodbav:"analysis,omitempty"`
	HistoryIndex int             `json:"historyIndex" dynamodbav:"historyIndex"`
	CreatedAt    int64           `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt    int64           `json:"updatedAt,omitempty" dynamodbav:"updatedAt,omitempty"`
}

// HistoryRecord is one generated edit (SK = HISTORY#{step}). Result is the
// S3 key of the edited image when results are exported to a bucket, or the
// data URL itself otherwise. FromOriginal marks an edit applied to the
// uploaded image rather than to the result of the previous step.
type HistoryRecord struct {
	Step         int       `json:"step" dynamodbav:"-"`
	EntryID      string    `json:"entryId" dynamodbav:"entryId"`
	Instruction  string    `json:"instruction" dynamodbav:"instruction"`
	Timestamp    time.Time `json:"timestamp" dynamodbav:"timestamp"`
	Result       string    `json:"result,omitempty" dynamodbav:"result,omitempty"`
	FromOriginal bool      `json:"fromOriginal,omitempty" dynamodbav:"fromOriginal,omitempty"`
}
