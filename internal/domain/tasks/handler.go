package tasks

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/scc/scc/internal/platform/auth"
	"github.com/scc/scc/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "surgeon", "nurse", "coordinator"))
	readGroup.GET("/tasks", h.List)
	readGroup.GET("/tasks/stats/summary", h.Stats)
	readGroup.GET("/tasks/patient/:mrn", h.ListByPatient)
	readGroup.GET("/tasks/procedure/:id", h.ListByProcedure)
	readGroup.GET("/tasks/:id", h.Get)

	writeGroup := api.Group("", auth.RequireRole("admin", "physician", "surgeon", "nurse", "coordinator"))
	writeGroup.POST("/tasks", h.Create)
	writeGroup.PATCH("/tasks/:id", h.Update)
	writeGroup.DELETE("/tasks/:id", h.Delete)
	writeGroup.POST("/tasks/:id/complete", h.Complete)
}

func (h *Handler) List(c echo.Context) error {
	filter := Filter{
		Status:     c.QueryParam("status"),
		Priority:   c.QueryParam("priority"),
		TaskType:   c.QueryParam("task_type"),
		PatientMRN: c.QueryParam("patient_mrn"),
		AssignedTo: c.QueryParam("assigned_to"),
	}
	if v := c.QueryParam("procedure_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid procedure_id")
		}
		filter.ProcedureID = &id
	}
	page := pagination.FromContext(c)
	filter.Limit = page.Limit
	filter.Offset = page.Offset
	items, err := h.svc.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(items),
		"tasks":   items,
	})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	t, err := h.svc.GetByID(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "task": t})
}

func (h *Handler) Create(c echo.Context) error {
	var t Task
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if t.CreatedBy == nil {
		if userID := auth.UserIDFromContext(c.Request().Context()); userID != "" {
			t.CreatedBy = &userID
		}
	}
	created, err := h.svc.Create(c.Request().Context(), &t)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"success": true, "task": created})
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	var u Update
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.Update(c.Request().Context(), id, u)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "task": t})
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "task not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "task deleted"})
}

type completeRequest struct {
	Notes *string `json:"notes,omitempty"`
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	var req completeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	var completedBy *string
	if userID := auth.UserIDFromContext(c.Request().Context()); userID != "" {
		completedBy = &userID
	}
	t, err := h.svc.Complete(c.Request().Context(), id, completedBy, req.Notes)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "task": t})
}

func (h *Handler) ListByPatient(c echo.Context) error {
	mrn := c.Param("mrn")
	items, err := h.svc.ListByPatient(c.Request().Context(), mrn, c.QueryParam("status"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"mrn":     mrn,
		"count":   len(items),
		"tasks":   items,
	})
}

func (h *Handler) ListByProcedure(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid procedure id")
	}
	items, err := h.svc.ListByProcedure(c.Request().Context(), id, c.QueryParam("status"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":      true,
		"procedure_id": id,
		"count":        len(items),
		"tasks":        items,
	})
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "stats": stats})
}
