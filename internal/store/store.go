// Package store provides storage backends for the intake service.
//
// It includes an in-memory store for tests and development plus SQLite and
// PostgreSQL implementations selected by DSN.
package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/karuna-health/intake/internal/models"
)

// Store persists form sessions, the abandonment telemetry trail, completed
// submissions, the session-identity key-value entries, and the follow-up
// notification ledger.
type Store interface {
	SaveSession(session models.FormSession) error
	GetSession(sessionID string) (*models.FormSession, error)
	DeleteSession(sessionID string) error

	AddEvent(event models.AbandonmentEvent) error
	GetEvents() ([]models.AbandonmentEvent, error)
	GetEventsBySession(sessionID string) ([]models.AbandonmentEvent, error)
	// ListAbandoned returns, for each session whose latest event is still
	// in progress and older than the cutoff, that latest event.
	ListAbandoned(olderThan time.Time) ([]models.AbandonmentEvent, error)

	AddSubmission(submission models.Submission) error
	GetSubmissions() ([]models.Submission, error)

	GetKV(key string) (string, error)
	SetKV(key, value string) error
	DeleteKV(key string) error

	MarkNotified(sessionID string) error
	WasNotified(sessionID string) (bool, error)

	Close() error
}

// Opts holds configuration for store construction.
type Opts struct {
	DSN string
}

// Option configures store construction.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs
// use URL or key=value forms; anything else is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore builds a store for the configured DSN: PostgreSQL for connection
// strings, SQLite for file paths, in-memory when no DSN is given.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("NewStore: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}

// InMemoryStore is a non-persistent Store used in tests and development.
type InMemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]models.FormSession
	events      []models.AbandonmentEvent
	submissions []models.Submission
	kv          map[string]string
	notified    map[string]time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.FormSession),
		kv:       make(map[string]string),
		notified: make(map[string]time.Time),
	}
}

func (s *InMemoryStore) SaveSession(session models.FormSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session
	return nil
}

func (s *InMemoryStore) GetSession(sessionID string) (*models.FormSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (s *InMemoryStore) DeleteSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *InMemoryStore) AddEvent(event models.AbandonmentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) GetEvents() ([]models.AbandonmentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AbandonmentEvent, len(s.events))
	copy(out, s.events)
	return out, nil
}

func (s *InMemoryStore) GetEventsBySession(sessionID string) ([]models.AbandonmentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AbandonmentEvent
	for _, event := range s.events {
		if event.SessionID == sessionID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListAbandoned(olderThan time.Time) ([]models.AbandonmentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := make(map[string]models.AbandonmentEvent)
	for _, event := range s.events {
		if prev, ok := latest[event.SessionID]; !ok || event.Timestamp.After(prev.Timestamp) {
			latest[event.SessionID] = event
		}
	}
	var out []models.AbandonmentEvent
	for _, event := range latest {
		if event.State == models.SessionInProgress && event.Timestamp.Before(olderThan) {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *InMemoryStore) AddSubmission(submission models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	s.submissions = append(s.submissions, submission)
	return nil
}

func (s *InMemoryStore) GetSubmissions() ([]models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Submission, len(s.submissions))
	copy(out, s.submissions)
	return out, nil
}

func (s *InMemoryStore) GetKV(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kv[key], nil
}

func (s *InMemoryStore) SetKV(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

func (s *InMemoryStore) DeleteKV(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}

func (s *InMemoryStore) MarkNotified(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notified[sessionID] = time.Now()
	return nil
}

func (s *InMemoryStore) WasNotified(sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.notified[sessionID]
	return ok, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
