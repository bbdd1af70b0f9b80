// Package events records learning events: enrollments, lesson activity,
// graded quizzes and rewards. Logging an event never fails the operation
// that produced it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// Type names a learning event.
type Type string

const (
	Enrolled        Type = "enrolled"
	Dropped         Type = "dropped"
	Reactivated     Type = "reactivated"
	EnrolledFresh   Type = "enrolled_fresh"
	LessonViewed    Type = "lesson_viewed"
	LessonCompleted Type = "lesson_completed"
	CourseCompleted Type = "course_completed"
	QuizGraded      Type = "quiz_graded"
	PointsCredited  Type = "points_credited"
	BadgeChanged    Type = "badge_changed"
)

// Event is a single learner-scoped fact.
type Event struct {
	ID        string         `json:"id"`
	LearnerID string         `json:"learner_id"`
	Type      Type           `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Logger defines event logging behavior.
type Logger interface {
	LogEvent(ctx context.Context, event Event) error
}

// Emit stamps the event and logs it. Failures are reported as warnings.
func Emit(ctx context.Context, l Logger, event Event) {
	if l == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if err := l.LogEvent(ctx, event); err != nil {
		slog.Warn("event logging failed",
			"type", event.Type,
			"learner_id", event.LearnerID,
			"error", err,
		)
	}
}

func validate(event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.LearnerID == "" {
		return fmt.Errorf("learner_id is required")
	}
	return nil
}

// NopLogger ignores all events.
type NopLogger struct{}

func (NopLogger) LogEvent(context.Context, Event) error {
	return nil
}

// MemoryLogger stores events in memory.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{
		events: []Event{},
	}
}

func (l *MemoryLogger) LogEvent(_ context.Context, event Event) error {
	if err := validate(event); err != nil {
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// OfType returns the recorded events of type t, oldest first.
func (l *MemoryLogger) OfType(t Type) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// PostgresLogger inserts events into the learning_events table.
type PostgresLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresLogger(pool *pgxpool.Pool) *PostgresLogger {
	return &PostgresLogger{pool: pool}
}

func (l *PostgresLogger) LogEvent(ctx context.Context, event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if err := validate(event); err != nil {
		return err
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO learning_events (id, learner_id, event_type, data, created_at)
		 VALUES ($1::uuid, $2, $3, $4::jsonb, $5)`,
		id,
		event.LearnerID,
		string(event.Type),
		string(data),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.Type,
		"learner_id", event.LearnerID,
	)
	return nil
}

// Recent returns the learner's newest events, newest first.
func (l *MemoryLogger) Recent(_ context.Context, learnerID string, limit int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []Event{}
	for i := len(l.events) - 1; i >= 0 && len(out) < limit; i-- {
		if l.events[i].LearnerID == learnerID {
			out = append(out, l.events[i])
		}
	}
	return out, nil
}

// Recent returns the learner's newest events, newest first.
func (l *PostgresLogger) Recent(ctx context.Context, learnerID string, limit int) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT id::text, learner_id, event_type, data, created_at
		 FROM learning_events
		 WHERE learner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		learnerID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var (
			e    Event
			typ  string
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.LearnerID, &typ, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = Type(typ)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// Multi fans an event out to several loggers. Every logger is tried; the
// first error is returned.
type Multi []Logger

func (m Multi) LogEvent(ctx context.Context, event Event) error {
	var first error
	for _, l := range m {
		if err := l.LogEvent(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
