// Package analytics reduces ledger, tracker and rewards state into the
// dashboard and course reports. It never mutates anything and reflects the
// underlying state at call time; empty inputs produce zero-valued reports.
//
// Per-learner time spent in course analytics is the sum of the learner's
// lesson time over the course's lessons. Earlier versions of this report
// filled the column with random numbers.
package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/content"
	"github.com/p-n-ai/pai-learn/internal/enrollment"
	"github.com/p-n-ai/pai-learn/internal/progress"
	"github.com/p-n-ai/pai-learn/internal/rewards"
)

// Progress labels shown in course analytics.
const (
	LabelYetToStart = "Yet-to-Start"
	LabelInProgress = "In-Progress"
	LabelCompleted  = "Completed"
)

// Enrollments is the read side of the enrollment ledger.
type Enrollments interface {
	ListByLearner(ctx context.Context, learnerID string) ([]enrollment.Enrollment, error)
	ListByCourse(ctx context.Context, courseID string) ([]enrollment.Enrollment, error)
	Recent(ctx context.Context, limit int) ([]enrollment.Enrollment, error)
	Stats(ctx context.Context) (enrollment.Stats, error)
}

// Lessons is the read side of the progress tracker.
type Lessons interface {
	RecentlyViewed(ctx context.Context, learnerID string, limit int) ([]progress.Progress, error)
	TimeSpentByLearner(ctx context.Context, courseID string) (map[string]int, error)
}

// Accounts is the read side of the rewards service.
type Accounts interface {
	Get(ctx context.Context, learnerID string) (rewards.Account, error)
	Ladder() rewards.Ladder
}

// DashboardStats is the platform-wide overview.
type DashboardStats struct {
	Courses           int                `json:"courses"`
	Learners          int                `json:"learners"`
	Enrollments       int                `json:"enrollments"`
	ActiveEnrollments int                `json:"active_enrollments"`
	RecentEnrollments []RecentEnrollment `json:"recent_enrollments"`
}

// RecentEnrollment is an enrollment with its course title.
type RecentEnrollment struct {
	enrollment.Enrollment
	CourseTitle string `json:"course_title"`
}

// CourseAnalytics summarizes one course.
type CourseAnalytics struct {
	CourseID        string       `json:"course_id"`
	Title           string       `json:"title"`
	AverageRating   float64      `json:"average_rating"`
	EnrollmentCount int          `json:"enrollment_count"`
	Learners        []LearnerRow `json:"learners"`
}

// LearnerRow is one learner's standing in a course.
type LearnerRow struct {
	LearnerID  string            `json:"learner_id"`
	EnrolledAt time.Time         `json:"enrolled_at"`
	Progress   int               `json:"progress"`
	Label      string            `json:"label"`
	Status     enrollment.Status `json:"status"`
	TimeSpent  int               `json:"time_spent"`
}

// LearnerDashboard is a learner's personal overview.
type LearnerDashboard struct {
	LearnerID        string         `json:"learner_id"`
	TotalEnrollments int            `json:"total_enrollments"`
	Completed        int            `json:"completed"`
	InProgress       int            `json:"in_progress"`
	Points           int64          `json:"points"`
	Badge            string         `json:"badge"`
	NextBadge        string         `json:"next_badge,omitempty"`
	PointsToNext     int64          `json:"points_to_next,omitempty"`
	RecentlyViewed   []ViewedLesson `json:"recently_viewed"`
}

// ViewedLesson is a progress row with its lesson and course context.
type ViewedLesson struct {
	LessonID    string    `json:"lesson_id"`
	LessonTitle string    `json:"lesson_title"`
	CourseID    string    `json:"course_id"`
	CourseTitle string    `json:"course_title"`
	Completed   bool      `json:"completed"`
	TimeSpent   int       `json:"time_spent"`
	LastViewed  time.Time `json:"last_viewed"`
}

// Aggregator computes reports on demand.
type Aggregator struct {
	graph          content.Graph
	enrollments    Enrollments
	lessons        Lessons
	accounts       Accounts
	recentEnrolled int
	recentViewed   int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithRecentEnrollments sets how many enrollments the dashboard lists.
func WithRecentEnrollments(n int) Option {
	return func(a *Aggregator) { a.recentEnrolled = n }
}

// WithRecentlyViewed sets how many lessons the learner dashboard lists.
func WithRecentlyViewed(n int) Option {
	return func(a *Aggregator) { a.recentViewed = n }
}

// NewAggregator creates an Aggregator. Both list sizes default to 5.
func NewAggregator(graph content.Graph, enrollments Enrollments, lessons Lessons, accounts Accounts, opts ...Option) *Aggregator {
	a := &Aggregator{
		graph:          graph,
		enrollments:    enrollments,
		lessons:        lessons,
		accounts:       accounts,
		recentEnrolled: 5,
		recentViewed:   5,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Label maps a completion percentage to its display label.
func Label(percentage int) string {
	switch {
	case percentage <= 0:
		return LabelYetToStart
	case percentage >= 100:
		return LabelCompleted
	default:
		return LabelInProgress
	}
}

// DashboardStats returns platform-wide counts and the newest enrollments.
func (a *Aggregator) DashboardStats(ctx context.Context) (DashboardStats, error) {
	const op = "analytics.DashboardStats"

	stats, err := a.enrollments.Stats(ctx)
	if err != nil {
		return DashboardStats{}, apperror.Internal(op, err)
	}
	recent, err := a.enrollments.Recent(ctx, a.recentEnrolled)
	if err != nil {
		return DashboardStats{}, apperror.Internal(op, err)
	}

	out := DashboardStats{
		Courses:           a.graph.CourseCount(),
		Learners:          stats.Learners,
		Enrollments:       stats.Enrollments,
		ActiveEnrollments: stats.Active,
		RecentEnrollments: make([]RecentEnrollment, 0, len(recent)),
	}
	for _, e := range recent {
		row := RecentEnrollment{Enrollment: e}
		if c, ok := a.graph.Course(e.CourseID); ok {
			row.CourseTitle = c.Title
		}
		out.RecentEnrollments = append(out.RecentEnrollments, row)
	}
	return out, nil
}

// CourseAnalytics returns the course summary and one row per enrolled
// learner, ordered by enrollment time.
func (a *Aggregator) CourseAnalytics(ctx context.Context, courseID string) (CourseAnalytics, error) {
	const op = "analytics.CourseAnalytics"

	course, ok := a.graph.Course(courseID)
	if !ok {
		return CourseAnalytics{}, apperror.NotFound(op, "course %s not found", courseID)
	}
	enrolled, err := a.enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		return CourseAnalytics{}, apperror.Internal(op, err)
	}
	spent, err := a.lessons.TimeSpentByLearner(ctx, courseID)
	if err != nil {
		return CourseAnalytics{}, apperror.Internal(op, err)
	}

	out := CourseAnalytics{
		CourseID:        course.ID,
		Title:           course.Title,
		AverageRating:   course.AverageRating(),
		EnrollmentCount: len(enrolled),
		Learners:        make([]LearnerRow, 0, len(enrolled)),
	}
	for _, e := range enrolled {
		out.Learners = append(out.Learners, LearnerRow{
			LearnerID:  e.LearnerID,
			EnrolledAt: e.EnrolledAt,
			Progress:   e.ProgressPercentage,
			Label:      Label(e.ProgressPercentage),
			Status:     e.Status,
			TimeSpent:  spent[e.LearnerID],
		})
	}
	sort.SliceStable(out.Learners, func(i, j int) bool {
		if out.Learners[i].EnrolledAt.Equal(out.Learners[j].EnrolledAt) {
			return out.Learners[i].LearnerID < out.Learners[j].LearnerID
		}
		return out.Learners[i].EnrolledAt.Before(out.Learners[j].EnrolledAt)
	})
	return out, nil
}

// LearnerDashboard returns the learner's enrollment counts, rewards
// standing and most recently viewed lessons. Completed counts COMPLETED
// enrollments and InProgress counts ACTIVE ones; dropped enrollments only
// count towards the total.
func (a *Aggregator) LearnerDashboard(ctx context.Context, learnerID string) (LearnerDashboard, error) {
	const op = "analytics.LearnerDashboard"

	enrolled, err := a.enrollments.ListByLearner(ctx, learnerID)
	if err != nil {
		return LearnerDashboard{}, apperror.Internal(op, err)
	}
	acct, err := a.accounts.Get(ctx, learnerID)
	if err != nil {
		return LearnerDashboard{}, apperror.Internal(op, err)
	}
	viewed, err := a.lessons.RecentlyViewed(ctx, learnerID, a.recentViewed)
	if err != nil {
		return LearnerDashboard{}, apperror.Internal(op, err)
	}

	out := LearnerDashboard{
		LearnerID:        learnerID,
		TotalEnrollments: len(enrolled),
		Points:           acct.TotalPoints,
		Badge:            acct.Badge,
		RecentlyViewed:   make([]ViewedLesson, 0, len(viewed)),
	}
	for _, e := range enrolled {
		switch e.Status {
		case enrollment.StatusCompleted:
			out.Completed++
		case enrollment.StatusActive:
			out.InProgress++
		}
	}
	if next, ok := a.accounts.Ladder().Next(acct.TotalPoints); ok {
		out.NextBadge = next.Name
		out.PointsToNext = next.MinPoints - acct.TotalPoints
	}

	for _, p := range viewed {
		row := ViewedLesson{
			LessonID:   p.LessonID,
			CourseID:   p.CourseID,
			Completed:  p.Completed,
			TimeSpent:  p.TimeSpent,
			LastViewed: p.LastViewed,
		}
		if l, ok := a.graph.Lesson(p.LessonID); ok {
			row.LessonTitle = l.Title
		}
		if c, ok := a.graph.Course(p.CourseID); ok {
			row.CourseTitle = c.Title
		}
		out.RecentlyViewed = append(out.RecentlyViewed, row)
	}
	return out, nil
}
