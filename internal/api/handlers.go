// Package api provides HTTP handlers for intake endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/karuna-health/intake/internal/models"
	"github.com/karuna-health/intake/internal/wizard"
)

// formSummary is the public shape of a form in listings. Rule internals stay
// server-side; clients only need segment names to render progress.
type formSummary struct {
	ID           string   `json:"id"`
	DisplayName  string   `json:"display_name"`
	SegmentCount int      `json:"segment_count"`
	SegmentNames []string `json:"segment_names"`
}

// sessionView is the public shape of a session in responses.
type sessionView struct {
	SessionID    string               `json:"session_id"`
	FormID       string               `json:"form_id"`
	SegmentIndex int                  `json:"segment_index"`
	SegmentID    string               `json:"segment_id,omitempty"`
	Terminal     models.TerminalState `json:"terminal,omitempty"`
	Answers      map[string]any       `json:"answers"`
	Resumed      bool                 `json:"resumed,omitempty"`
}

func (s *Server) sessionView(sess *models.FormSession, resumed bool) sessionView {
	view := sessionView{
		SessionID:    sess.SessionID,
		FormID:       sess.FormID,
		SegmentIndex: sess.CurrentSegmentIndex,
		Terminal:     sess.TerminalState,
		Answers:      sess.Answers,
		Resumed:      resumed,
	}
	if form, ok := s.registry.Get(sess.FormID); ok {
		if sess.CurrentSegmentIndex >= 0 && sess.CurrentSegmentIndex < len(form.Segments) {
			view.SegmentID = form.Segments[sess.CurrentSegmentIndex].ID
		}
	}
	return view
}

// formsHandler handles GET /forms.
func (s *Server) formsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.formsHandler: processing forms request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.formsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	defs := s.registry.List()
	summaries := make([]formSummary, 0, len(defs))
	for _, def := range defs {
		names := make([]string, 0, len(def.Segments))
		for _, seg := range def.Segments {
			names = append(names, seg.DisplayName)
		}
		summaries = append(summaries, formSummary{
			ID:           def.ID,
			DisplayName:  def.DisplayName,
			SegmentCount: len(def.Segments),
			SegmentNames: names,
		})
	}
	slog.Debug("Server.formsHandler: forms listed", "count", len(summaries))
	writeJSONResponse(w, http.StatusOK, models.Success(summaries))
}

// formSessionsHandler handles POST /forms/{form}/sessions: create a new
// session for the form, or resume the one this device already started.
func (s *Server) formSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.formSessionsHandler: processing request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/forms/")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] != "sessions" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown forms endpoint"))
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.formSessionsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	formID := segments[0]
	form, ok := s.registry.Get(formID)
	if !ok {
		slog.Warn("Server.formSessionsHandler: unknown form", "formID", formID)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown form: "+formID))
		return
	}

	eng := wizard.NewEngine(form, s.engineDeps(clientKey(r)))
	sess, created, err := eng.InitializeSession(r.Context())
	if err != nil {
		slog.Error("Server.formSessionsHandler: failed to initialize session", "error", err, "formID", formID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to initialize session"))
		return
	}

	if !created {
		// The device key points at an earlier session. Pick up its saved
		// progress; if the record is gone the fresh state stands in for it.
		persisted, err := s.st.GetSession(sess.SessionID)
		if err != nil {
			slog.Error("Server.formSessionsHandler: failed to load persisted session", "error", err, "sessionID", sess.SessionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
			return
		}
		if persisted != nil {
			eng.Resume(persisted)
			sess = persisted
		}
	}

	if err := s.st.SaveSession(*sess); err != nil {
		slog.Error("Server.formSessionsHandler: failed to save session", "error", err, "sessionID", sess.SessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save session"))
		return
	}

	status := http.StatusOK
	message := "Session resumed"
	if created {
		status = http.StatusCreated
		message = "Session created"
	}
	slog.Info("Server.formSessionsHandler: session ready", "formID", formID, "sessionID", sess.SessionID, "created", created)
	writeJSONResponse(w, status, models.SuccessWithMessage(message, s.sessionView(sess, !created)))
}

// sessionsHandler routes /sessions/{id} and /sessions/{id}/{action}.
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.sessionsHandler: processing request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown sessions endpoint"))
		return
	}
	sessionID := segments[0]

	if len(segments) == 1 {
		// /sessions/{id}
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.getSessionHandler(w, r, sessionID)
		return
	}

	if len(segments) == 2 {
		// /sessions/{id}/{action}
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch segments[1] {
		case "answers":
			s.updateAnswerHandler(w, r, sessionID)
		case "next":
			s.nextSegmentHandler(w, r, sessionID)
		case "back":
			s.previousSegmentHandler(w, r, sessionID)
		case "submit":
			s.submitHandler(w, r, sessionID)
		default:
			writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session action: "+segments[1]))
		}
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown sessions endpoint"))
}

// loadEngine restores the persisted session behind an engine. A nil return
// means the response has already been written.
func (s *Server) loadEngine(w http.ResponseWriter, r *http.Request, sessionID string) *wizard.Engine {
	sess, err := s.st.GetSession(sessionID)
	if err != nil {
		slog.Error("Server.loadEngine: failed to load session", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return nil
	}
	if sess == nil {
		slog.Warn("Server.loadEngine: session not found", "sessionID", sessionID)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found: "+sessionID))
		return nil
	}
	form, ok := s.registry.Get(sess.FormID)
	if !ok {
		slog.Error("Server.loadEngine: session references unknown form", "sessionID", sessionID, "formID", sess.FormID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Session references unknown form: "+sess.FormID))
		return nil
	}
	eng := wizard.NewEngine(form, s.engineDeps(clientKey(r)))
	eng.Resume(sess)
	return eng
}

// saveSession persists engine state after a mutation. A false return means
// the response has already been written.
func (s *Server) saveSession(w http.ResponseWriter, eng *wizard.Engine) bool {
	if err := s.st.SaveSession(*eng.Session()); err != nil {
		slog.Error("Server.saveSession: failed to save session", "error", err, "sessionID", eng.Session().SessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save session"))
		return false
	}
	return true
}

// getSessionHandler handles GET /sessions/{id}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	eng := s.loadEngine(w, r, sessionID)
	if eng == nil {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessionView(eng.Session(), false)))
}

// updateAnswerHandler handles POST /sessions/{id}/answers.
func (s *Server) updateAnswerHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req models.UpdateAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.updateAnswerHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.updateAnswerHandler: validation failed", "error", err, "field", req.Field)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	eng := s.loadEngine(w, r, sessionID)
	if eng == nil {
		return
	}
	if err := eng.UpdateAnswer(r.Context(), req.Field, req.Value); err != nil {
		if errors.Is(err, models.ErrSessionTerminal) {
			writeJSONResponse(w, http.StatusConflict, models.Error("Session is already closed"))
			return
		}
		slog.Error("Server.updateAnswerHandler: failed to update answer", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if !s.saveSession(w, eng) {
		return
	}
	slog.Debug("Server.updateAnswerHandler: answer recorded", "sessionID", sessionID, "field", req.Field)
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessionView(eng.Session(), false)))
}

// nextSegmentHandler handles POST /sessions/{id}/next.
func (s *Server) nextSegmentHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	eng := s.loadEngine(w, r, sessionID)
	if eng == nil {
		return
	}
	res, err := eng.NextSegment(r.Context())
	if err != nil {
		if errors.Is(err, models.ErrSessionTerminal) {
			writeJSONResponse(w, http.StatusConflict, models.Error("Session is already closed"))
			return
		}
		slog.Error("Server.nextSegmentHandler: navigation failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to advance session"))
		return
	}
	if !s.saveSession(w, eng) {
		return
	}

	if !res.Advanced && !res.Validation.Valid {
		slog.Debug("Server.nextSegmentHandler: segment invalid", "sessionID", sessionID, "errors", len(res.Validation.FieldErrors))
		writeJSONResponse(w, http.StatusUnprocessableEntity, models.Invalid(res.Validation.FieldErrors))
		return
	}
	if res.Terminal == models.TerminalIneligible {
		slog.Info("Server.nextSegmentHandler: session screened out", "sessionID", sessionID, "segment", res.SegmentIndex)
		writeJSONResponse(w, http.StatusOK, models.Ineligible(res))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// previousSegmentHandler handles POST /sessions/{id}/back.
func (s *Server) previousSegmentHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	eng := s.loadEngine(w, r, sessionID)
	if eng == nil {
		return
	}
	res, err := eng.PreviousSegment(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionTerminal):
			writeJSONResponse(w, http.StatusConflict, models.Error("Session is already closed"))
		case errors.Is(err, models.ErrAlreadyAtFirst):
			writeJSONResponse(w, http.StatusConflict, models.Error("Already at the first segment"))
		default:
			slog.Error("Server.previousSegmentHandler: navigation failed", "error", err, "sessionID", sessionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to step back"))
		}
		return
	}
	if !s.saveSession(w, eng) {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// submitHandler handles POST /sessions/{id}/submit.
func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	eng := s.loadEngine(w, r, sessionID)
	if eng == nil {
		return
	}
	res, err := eng.Submit(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionTerminal):
			writeJSONResponse(w, http.StatusConflict, models.Error("Session is already closed"))
		case errors.Is(err, models.ErrSubmitInFlight):
			writeJSONResponse(w, http.StatusConflict, models.Error("Submission already in progress"))
		case errors.Is(err, models.ErrSubmissionFailed):
			// State is untouched; the patient can retry without losing answers.
			if s.saveSession(w, eng) {
				writeJSONResponse(w, http.StatusBadGateway, models.Error("Submission delivery failed, please retry"))
			}
		default:
			slog.Error("Server.submitHandler: submit failed", "error", err, "sessionID", sessionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to submit questionnaire"))
		}
		return
	}
	if !s.saveSession(w, eng) {
		return
	}

	if !res.Submitted {
		slog.Debug("Server.submitHandler: revalidation failed", "sessionID", sessionID, "segment", res.SegmentIndex)
		response := models.NewAPIResponseBuilder().
			WithStatus(models.APIStatusInvalid).
			WithMessage("validation failed").
			WithFieldErrors(res.FieldErrors).
			WithResult(res).
			Build()
		writeJSONResponse(w, http.StatusUnprocessableEntity, response)
		return
	}
	slog.Info("Server.submitHandler: questionnaire submitted", "sessionID", sessionID, "authorizationID", res.AuthorizationID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Questionnaire submitted", res))
}

// eventsHandler handles GET /events, optionally filtered by session_id.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.eventsHandler: processing events request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var (
		events []models.AbandonmentEvent
		err    error
	)
	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		events, err = s.st.GetEventsBySession(sessionID)
	} else {
		events, err = s.st.GetEvents()
	}
	if err != nil {
		slog.Error("Server.eventsHandler: failed to fetch events", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch events"))
		return
	}
	slog.Debug("Server.eventsHandler: events fetched", "count", len(events))
	writeJSONResponse(w, http.StatusOK, models.Success(events))
}

// submissionsHandler handles GET /submissions.
func (s *Server) submissionsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.submissionsHandler: processing submissions request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	submissions, err := s.st.GetSubmissions()
	if err != nil {
		slog.Error("Server.submissionsHandler: failed to fetch submissions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch submissions"))
		return
	}
	slog.Debug("Server.submissionsHandler: submissions fetched", "count", len(submissions))
	writeJSONResponse(w, http.StatusOK, models.Success(submissions))
}

// healthHandler provides a health check endpoint for monitoring.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status": "healthy",
		"forms":  len(s.registry.List()),
	}
	if _, err := s.st.GetSubmissions(); err != nil {
		slog.Warn("Health check: store unavailable", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Store unavailable"
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}
