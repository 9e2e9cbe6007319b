package server

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apperrors "github.com/iamvishnuk/poll-server/internal/errors"
)

type createPollRequest struct {
	Question    string   `json:"question"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
}

type castVoteRequest struct {
	Option string `json:"option"`
}

// apiResponse is the success envelope shared by all REST endpoints. The
// error-side counterpart lives in the errors package middleware.
type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(c echo.Context, code int, message string, data any) error {
	response := apiResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	}
	if err := c.JSON(code, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func pollIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("invalid poll id")
	}
	return id, nil
}

func (s *Server) handleCreatePoll(c echo.Context) error {
	var req createPollRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	poll, err := s.polls.CreatePoll(c.Request().Context(), req.Question, req.Description, req.Options)
	if err != nil {
		return err
	}

	return respond(c, http.StatusCreated, "Poll created successfully", poll)
}

func (s *Server) handleListPolls(c echo.Context) error {
	polls, err := s.polls.ListPolls(c.Request().Context())
	if err != nil {
		return err
	}

	message := fmt.Sprintf("Retrieved %d polls successfully", len(polls))
	return respond(c, http.StatusOK, message, polls)
}

func (s *Server) handleGetPoll(c echo.Context) error {
	id, err := pollIDParam(c, "id")
	if err != nil {
		return err
	}

	poll, err := s.polls.GetPoll(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "Poll retrieved successfully", poll)
}

func (s *Server) handleCastVote(c echo.Context) error {
	id, err := pollIDParam(c, "id")
	if err != nil {
		return err
	}

	var req castVoteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	result, err := s.polls.CastVote(c.Request().Context(), id, req.Option)
	if err != nil {
		return err
	}

	message := fmt.Sprintf("Vote recorded for '%s'", result.Option)
	return respond(c, http.StatusOK, message, result)
}

func (s *Server) handleClosePoll(c echo.Context) error {
	id, err := pollIDParam(c, "id")
	if err != nil {
		return err
	}

	if err := s.polls.ClosePoll(c.Request().Context(), id); err != nil {
		return err
	}

	return respond(c, http.StatusOK, "Poll closed successfully", map[string]string{"poll_id": id.String()})
}

func (s *Server) handleDeletePoll(c echo.Context) error {
	id, err := pollIDParam(c, "id")
	if err != nil {
		return err
	}

	if err := s.polls.DeletePoll(c.Request().Context(), id); err != nil {
		return err
	}

	message := fmt.Sprintf("Poll %s deleted successfully", id)
	return respond(c, http.StatusOK, message, map[string]string{"poll_id": id.String()})
}
