package facts

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/scc/scc/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "surgeon", "nurse", "coordinator"))
	readGroup.GET("/facts/:id", h.GetCaseFacts)
	readGroup.GET("/facts/:id/history", h.GetFactHistory)

	writeGroup := api.Group("", auth.RequireRole("admin", "physician", "surgeon", "coordinator"))
	writeGroup.POST("/facts/:id", h.AddFact)
	writeGroup.POST("/facts/entries/:id/verify", h.VerifyFact)
	writeGroup.POST("/facts/entries/:id/supersede", h.SupersedeFact)
}

// GetCaseFacts returns the resolved fact map for a case.
func (h *Handler) GetCaseFacts(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	factMap, err := h.svc.GetFactMap(c.Request().Context(), caseID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"case_id": caseID,
		"facts":   factMap,
	})
}

func (h *Handler) AddFact(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	var in AddFactInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.AddFact(c.Request().Context(), caseID, in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"fact":    f,
	})
}

func (h *Handler) GetFactHistory(c echo.Context) error {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	history, err := h.svc.GetFactHistory(c.Request().Context(), caseID, c.QueryParam("fact_type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"case_id": caseID,
		"history": history,
	})
}

type verifyRequest struct {
	VerifiedBy string `json:"verified_by"`
}

func (h *Handler) VerifyFact(c echo.Context) error {
	factID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid fact id")
	}
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.VerifiedBy == "" {
		req.VerifiedBy = auth.UserIDFromContext(c.Request().Context())
	}
	if !h.svc.VerifyFact(c.Request().Context(), factID, req.VerifiedBy) {
		return echo.NewHTTPError(http.StatusNotFound, "fact not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "fact_id": factID})
}

type supersedeRequest struct {
	NewFactID *uuid.UUID `json:"new_fact_id,omitempty"`
}

func (h *Handler) SupersedeFact(c echo.Context) error {
	factID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid fact id")
	}
	var req supersedeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !h.svc.SupersedeFact(c.Request().Context(), factID, req.NewFactID) {
		return echo.NewHTTPError(http.StatusNotFound, "fact not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "fact_id": factID})
}
