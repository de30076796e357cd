package shadowcoder

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/scc/scc/internal/platform/auth"
)

// Handler exposes prompt queries and actions over HTTP.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "surgeon", "nurse", "coordinator"))
	readGroup.GET("/prompts/:id", h.GetCasePrompts)
	readGroup.GET("/prompts/:id/summary", h.GetPromptSummary)

	writeGroup := api.Group("", auth.RequireRole("admin", "physician", "surgeon", "coordinator"))
	writeGroup.POST("/prompts/:id/action", h.ApplyAction)
	writeGroup.POST("/prompts/:id/evaluate", h.Evaluate)
}

// GetCasePrompts returns the active prompts for a case, highest
// severity first, with the per-severity summary.
func (h *Handler) GetCasePrompts(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	prompts, err := h.engine.GetActivePrompts(c.Request().Context(), caseID)
	if err != nil {
		return err
	}
	summary, err := h.engine.GetPromptSummary(c.Request().Context(), caseID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"case_id": caseID,
		"prompts": prompts,
		"summary": summary,
	})
}

// GetPromptSummary returns only the per-severity counts for a case.
func (h *Handler) GetPromptSummary(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	summary, err := h.engine.GetPromptSummary(c.Request().Context(), caseID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"case_id": caseID,
		"summary": summary,
	})
}

type promptActionRequest struct {
	Action string  `json:"action"`
	Note   *string `json:"note,omitempty"`
}

// ApplyAction executes a clinician action (DISMISS, SNOOZE_<N>H,
// DOCUMENT, RESOLVE) against one prompt instance.
func (h *Handler) ApplyAction(c echo.Context) error {
	promptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prompt id")
	}
	var req promptActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action is required")
	}

	var actedBy *string
	if userID := auth.UserIDFromContext(c.Request().Context()); userID != "" {
		actedBy = &userID
	}

	prompt, err := h.engine.ApplyPromptAction(c.Request().Context(), promptID, req.Action, req.Note, actedBy)
	switch {
	case errors.Is(err, ErrUnknownAction):
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action: "+req.Action)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "prompt not found")
	case errors.Is(err, ErrTerminal):
		return echo.NewHTTPError(http.StatusConflict, "prompt already resolved or dismissed")
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"prompt":  prompt,
	})
}

// Evaluate re-runs the rule table for a case on demand.
func (h *Handler) Evaluate(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	result, err := h.engine.EvaluateRules(c.Request().Context(), caseID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"case_id":    caseID,
		"evaluation": result,
	})
}
