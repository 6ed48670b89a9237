package storage

import (
	"errors"
	"time"

	"github.com/kalambet/howdo/internal/answers"
	"github.com/kalambet/howdo/internal/document"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by CreateUser when the email is taken.
var ErrDuplicateEmail = errors.New("email already registered")

// Backend is the persistence contract shared by the SQLite and in-memory
// stores.
type Backend interface {
	CreateUser(u User) error
	GetUser(id string) (User, error)
	GetUserByEmail(email string) (User, error)
	CreateDocument(d Document) error
	GetDocument(id string) (Document, error)
	ListDocumentsForUser(userID string) ([]Document, error)
	DeleteDocument(id string) error
	Close() error
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Company      string
	CreatedAt    time.Time
}

type Document struct {
	ID        string
	UserID    string
	Title     string
	Type      document.Kind
	Answers   answers.Answers
	CreatedAt time.Time
}

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

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

// Rendition is a cached rendered file of a document.
type Rendition struct {
	DocumentID  string
	Format      string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}
