package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/post-scraper/internal/scrape"
)

const missingUsernameMessage = `Missing parameter: "username"`

func (s *Server) missingUsername(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusBadRequest, missingUsernameMessage)
}

// getPosts handles GET /posts/{username}. It blocks for the whole
// orchestration and answers with the record array or a mapped error.
func (s *Server) getPosts(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(chi.URLParam(r, "username"))
	if username == "" {
		s.missingUsername(w, r)
		return
	}

	res, err := s.runner.Run(r.Context(), scrape.Subject(username))
	if err != nil {
		status := statusForError(err)
		body := errorBody{Message: err.Error()}
		var se *scrape.Error
		if errors.As(err, &se) {
			body.Kind = se.Kind.String()
			body.RunID = se.RunID
		}
		if errors.Is(err, scrape.ErrInvalidSubject) {
			body.Message = missingUsernameMessage
		}
		s.logger.Warn("scrape request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("username", username),
			zap.Int("status", status),
			zap.Error(err),
		)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// statusForError maps an orchestration failure onto an HTTP status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, scrape.ErrInvalidSubject):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch scrape.KindOf(err) {
	case scrape.KindSubmission, scrape.KindPoll, scrape.KindFetch:
		return http.StatusBadGateway
	case scrape.KindJobFailed:
		return http.StatusUnprocessableEntity
	case scrape.KindTimedOut:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
