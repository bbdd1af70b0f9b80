// Package api exposes the learning core over HTTP.
package api

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-learn/internal/analytics"
	"github.com/p-n-ai/pai-learn/internal/assessment"
	"github.com/p-n-ai/pai-learn/internal/enrollment"
	"github.com/p-n-ai/pai-learn/internal/events"
	"github.com/p-n-ai/pai-learn/internal/progress"
	"github.com/p-n-ai/pai-learn/internal/rewards"
)

// Ledger is the enrollment write surface.
type Ledger interface {
	Enroll(ctx context.Context, learnerID, courseID string) (enrollment.Enrollment, error)
	Drop(ctx context.Context, learnerID, courseID string) (enrollment.Enrollment, error)
	Reactivate(ctx context.Context, learnerID, courseID string) (enrollment.Enrollment, error)
	EnrollFresh(ctx context.Context, learnerID, courseID string) (enrollment.Enrollment, error)
}

// Tracker records lesson activity.
type Tracker interface {
	RecordView(ctx context.Context, learnerID, lessonID string) (progress.Progress, error)
	MarkComplete(ctx context.Context, learnerID, lessonID string) (enrollment.Enrollment, error)
	AddTimeSpent(ctx context.Context, learnerID, lessonID string, minutes int) (progress.Progress, error)
}

// Assessor grades quiz submissions.
type Assessor interface {
	SubmitQuiz(ctx context.Context, learnerID, quizID string, answers assessment.Answers) (assessment.Grade, error)
}

// Rewards reads reward accounts.
type Rewards interface {
	Get(ctx context.Context, learnerID string) (rewards.Account, error)
}

// Reports computes analytics.
type Reports interface {
	DashboardStats(ctx context.Context) (analytics.DashboardStats, error)
	CourseAnalytics(ctx context.Context, courseID string) (analytics.CourseAnalytics, error)
	LearnerDashboard(ctx context.Context, learnerID string) (analytics.LearnerDashboard, error)
}

// Subscriber streams a learner's live events.
type Subscriber interface {
	Subscribe(learnerID string) (<-chan events.Event, func())
}

// History reads a learner's recorded events.
type History interface {
	Recent(ctx context.Context, learnerID string, limit int) ([]events.Event, error)
}

// Check reports whether a dependency is ready.
type Check func(ctx context.Context) error

// Deps are the collaborators served by the API.
type Deps struct {
	Ledger   Ledger
	Tracker  Tracker
	Assessor Assessor
	Rewards  Rewards
	Reports  Reports
	Events   Subscriber
	History  History
	Auth     *Authenticator
	// Checks are run by /readyz, keyed by dependency name.
	Checks map[string]Check
}

// Server routes HTTP requests to the learning core.
type Server struct {
	ledger   Ledger
	tracker  Tracker
	assessor Assessor
	rewards  Rewards
	reports  Reports
	events   Subscriber
	history  History
	auth     *Authenticator
	checks   map[string]Check
}

// NewServer creates a Server.
func NewServer(d Deps) *Server {
	return &Server{
		ledger:   d.Ledger,
		tracker:  d.Tracker,
		assessor: d.Assessor,
		rewards:  d.Rewards,
		reports:  d.Reports,
		events:   d.Events,
		history:  d.History,
		auth:     d.Auth,
		checks:   d.Checks,
	}
}

// Handler returns the root handler with logging and authentication.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /api/courses/{courseID}/enrollment", anyMember(s.handleEnroll))
	mux.HandleFunc("DELETE /api/courses/{courseID}/enrollment", anyMember(s.handleDrop))
	mux.HandleFunc("POST /api/courses/{courseID}/enrollment/reactivate", anyMember(s.handleReactivate))
	mux.HandleFunc("POST /api/courses/{courseID}/enrollment/fresh", anyMember(s.handleEnrollFresh))

	mux.HandleFunc("POST /api/lessons/{lessonID}/views", anyMember(s.handleRecordView))
	mux.HandleFunc("POST /api/lessons/{lessonID}/completion", anyMember(s.handleCompleteLesson))
	mux.HandleFunc("POST /api/lessons/{lessonID}/time", anyMember(s.handleAddTime))

	mux.HandleFunc("POST /api/quizzes/{quizID}/submissions", anyMember(s.handleSubmitQuiz))

	mux.HandleFunc("GET /api/me/rewards", anyMember(s.handleRewards))
	mux.HandleFunc("GET /api/me/dashboard", anyMember(s.handleLearnerDashboard))
	mux.HandleFunc("GET /api/me/events", anyMember(s.handleEventHistory))

	mux.HandleFunc("GET /api/admin/dashboard", staff(s.handleDashboardStats))
	mux.HandleFunc("GET /api/courses/{courseID}/analytics", staff(s.handleCourseAnalytics))
	mux.HandleFunc("GET /api/courses/{courseID}/analytics/export", staff(s.handleCourseExport))

	mux.HandleFunc("GET /ws/events", anyMember(s.handleEvents))

	return logRequests(s.authenticate(mux))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack lets websocket upgrades through the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.status = http.StatusSwitchingProtocols
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"latency", time.Since(start),
		)
	})
}
