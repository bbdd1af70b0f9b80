package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-learn/internal/analytics"
	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/assessment"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type timeSpentRequest struct {
	Minutes *int `json:"minutes" validate:"required,min=0"`
}

type submitQuizRequest struct {
	Answers assessment.Answers `json:"answers" validate:"required"`
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	e, err := s.ledger.Enroll(r.Context(), PrincipalFrom(r.Context()).ID, r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	e, err := s.ledger.Drop(r.Context(), PrincipalFrom(r.Context()).ID, r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleReactivate(w http.ResponseWriter, r *http.Request) {
	e, err := s.ledger.Reactivate(r.Context(), PrincipalFrom(r.Context()).ID, r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleEnrollFresh(w http.ResponseWriter, r *http.Request) {
	e, err := s.ledger.EnrollFresh(r.Context(), PrincipalFrom(r.Context()).ID, r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleRecordView(w http.ResponseWriter, r *http.Request) {
	p, err := s.tracker.RecordView(r.Context(), PrincipalFrom(r.Context()).ID, r.PathValue("lessonID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	e, err := s.tracker.MarkComplete(r.Context(), PrincipalFrom(r.Context()).ID, r.PathValue("lessonID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleAddTime(w http.ResponseWriter, r *http.Request) {
	var req timeSpentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.tracker.AddTimeSpent(r.Context(), PrincipalFrom(r.Context()).ID, r.PathValue("lessonID"), *req.Minutes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	var req submitQuizRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.assessor.SubmitQuiz(r.Context(), PrincipalFrom(r.Context()).ID, r.PathValue("quizID"), req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	acct, err := s.rewards.Get(r.Context(), PrincipalFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleLearnerDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.reports.LearnerDashboard(r.Context(), PrincipalFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, r, apperror.Invalid("api.events", "limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}
	evs, err := s.history.Recent(r.Context(), PrincipalFrom(r.Context()).ID, limit)
	if err != nil {
		writeError(w, r, apperror.Internal("api.events", err))
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	d, err := s.reports.DashboardStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCourseAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.CourseAnalytics(r.Context(), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleCourseExport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.CourseAnalytics(r.Context(), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Render fully before writing headers so failures still map to 500.
	var buf bytes.Buffer
	if err := analytics.ExportCourseXLSX(&buf, report); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.CourseID+"-analytics.xlsx"))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
