package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Draft statuses.
const (
	DraftPending = "pending"
	DraftReady   = "ready"
	DraftFailed  = "failed"
)

// Image is a normalized photo kept for display and extraction.
type Image struct {
	ID        string
	MIME      string
	Data      []byte
	CreatedAt time.Time
}

// Draft is an extraction result awaiting user confirmation.
type Draft struct {
	ID        string
	Status    string // "pending", "ready", "failed"
	Note      string
	ImageID   string
	ItemJSON  string // extracted record, set when ready
	Error     string // human-readable cause, set when failed
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
