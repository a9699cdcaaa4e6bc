package api

import (
	"errors"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/netassist/core/pkg/models"
)

func (s *Server) turnHandler(c *echo.Context) error {
	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Error: "invalid request body"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Error: "text is required"})
	}

	source := models.SourceText
	if req.Source == string(models.SourceVoice) {
		source = models.SourceVoice
	}
	u := models.Utterance{
		Text:              req.Text,
		ConversationID:    req.ConversationID,
		ArrivalTime:       time.Now(),
		Source:            source,
		RuntimePrivileged: req.Privileged,
	}

	result, err := s.orch.Turn(c.Request().Context(), u, models.Scope(req.Scope))
	if err != nil {
		var execErr *models.ExecutionError
		if errors.As(err, &execErr) {
			return c.JSON(http.StatusUnprocessableEntity, &ErrorResponse{Error: execErr.Error()})
		}
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, toTurnResponse(result))
}

func (s *Server) cancelTurnHandler(c *echo.Context) error {
	s.orch.CancelTurn()
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) setScopeHandler(c *echo.Context) error {
	var req SetScopeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Error: "invalid request body"})
	}
	if err := s.orch.SetScope(models.Scope(req.Scope)); err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listWatchesHandler(c *echo.Context) error {
	rules, err := s.orch.WatchList(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
	}
	out := make([]WatchRulePayload, 0, len(rules))
	for _, r := range rules {
		out = append(out, toWatchRulePayload(r))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) stopWatchHandler(c *echo.Context) error {
	id := c.Param("id")
	if err := s.orch.WatchStop(c.Request().Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, &ErrorResponse{Error: "watch rule not found"})
		}
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) watchLogsHandler(c *echo.Context) error {
	id := c.Param("id")
	records, err := s.orch.WatchLogs(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, &ErrorResponse{Error: "watch rule not found"})
		}
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
	}
	out := make([]ChangeRecordPayload, 0, len(records))
	for _, rec := range records {
		out = append(out, ChangeRecordPayload{
			ID:           rec.ID,
			ChangeType:   string(rec.ChangeType),
			ChangeScore:  rec.ChangeScore,
			DetectedAt:   rec.DetectedAt.Format(time.RFC3339),
			HumanSummary: rec.HumanSummary,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func toWatchRulePayload(r models.WatchRule) WatchRulePayload {
	return WatchRulePayload{
		ID:              r.ID,
		ConversationID:  r.ConversationID,
		TargetID:        r.TargetID,
		TargetType:      string(r.TargetType),
		Intent:          string(r.OriginatingIntent),
		ExpiresAt:       r.ExpiresAt.Format(time.RFC3339),
		PollIntervalMS:  r.PollIntervalMS,
		ChangeThreshold: r.ChangeThreshold,
		Active:          r.Active,
	}
}
