package orcc

import (
	"errors"
	"net/http"
	"strconv"
	"time"

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
	readGroup.GET("/procedures", h.ListProcedures)
	readGroup.GET("/procedures/:id", h.GetProcedure)
	readGroup.GET("/patients", h.ListPatients)
	readGroup.GET("/patients/:mrn", h.GetPatient)
	readGroup.GET("/orcc/status", h.Status)

	writeGroup := api.Group("", auth.RequireRole("admin", "physician", "surgeon", "coordinator"))
	writeGroup.POST("/procedures", h.CreateProcedure)
	writeGroup.PATCH("/procedures/:id", h.UpdateProcedure)
	writeGroup.POST("/patients", h.CreatePatient)
}

func (h *Handler) ListProcedures(c echo.Context) error {
	page := pagination.FromContext(c)
	filter := ProcedureFilter{
		SurgicalStatus:    c.QueryParam("surgical_status"),
		MRN:               c.QueryParam("patient_mrn"),
		ScheduledLocation: c.QueryParam("scheduled_location"),
		Limit:             page.Limit,
		Offset:            page.Offset,
	}
	procedures, err := h.svc.ListProcedures(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"procedures": procedures,
		"count":      len(procedures),
	})
}

func (h *Handler) GetProcedure(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid procedure id")
	}
	p, err := h.svc.GetProcedure(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "procedure not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "procedure": p})
}

type createProcedureRequest struct {
	MRN               string     `json:"mrn"`
	PatientName       *string    `json:"patient_name,omitempty"`
	ProcedureName     string     `json:"procedure_name"`
	Laterality        *string    `json:"laterality,omitempty"`
	Surgeon           *string    `json:"surgeon,omitempty"`
	SurgicalStatus    string     `json:"surgical_status,omitempty"`
	ScheduledLocation *string    `json:"scheduled_location,omitempty"`
	ScheduledDate     *time.Time `json:"scheduled_date,omitempty"`
	Notes             *string    `json:"notes,omitempty"`
}

func (h *Handler) CreateProcedure(c echo.Context) error {
	var req createProcedureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p := &Procedure{
		MRN:               req.MRN,
		PatientName:       req.PatientName,
		ProcedureName:     req.ProcedureName,
		Laterality:        req.Laterality,
		Surgeon:           req.Surgeon,
		SurgicalStatus:    req.SurgicalStatus,
		ScheduledLocation: req.ScheduledLocation,
		ScheduledDate:     req.ScheduledDate,
		Notes:             req.Notes,
	}
	created, err := h.svc.CreateProcedure(c.Request().Context(), p)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"success": true, "procedure": created})
}

func (h *Handler) UpdateProcedure(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid procedure id")
	}
	var u ProcedureUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.UpdateProcedure(c.Request().Context(), id, u)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "procedure not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "procedure": p})
}

func (h *Handler) ListPatients(c echo.Context) error {
	var active *bool
	if v := c.QueryParam("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid active filter")
		}
		active = &b
	}
	page := pagination.FromContext(c)
	patients, err := h.svc.SearchPatients(c.Request().Context(), c.QueryParam("search"), active, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	total, err := h.svc.CountPatients(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"patients": patients,
		"count":    len(patients),
		"total":    total,
		"has_more": page.HasNext(total),
	})
}

func (h *Handler) GetPatient(c echo.Context) error {
	mrn := c.Param("mrn")
	p, err := h.svc.GetPatientByMRN(c.Request().Context(), mrn)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	if err != nil {
		return err
	}
	procedures, err := h.svc.ListProceduresByMRN(c.Request().Context(), mrn, 10)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"patient":    p,
		"procedures": procedures,
	})
}

type createPatientRequest struct {
	MRN              string  `json:"mrn"`
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	DateOfBirth      string  `json:"date_of_birth,omitempty"`
	Gender           *string `json:"gender,omitempty"`
	PhonePrimary     *string `json:"phone_primary,omitempty"`
	Email            *string `json:"email,omitempty"`
	PrimaryPhysician *string `json:"primary_physician,omitempty"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req createPatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p := &Patient{
		MRN:              req.MRN,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Gender:           req.Gender,
		PhonePrimary:     req.PhonePrimary,
		Email:            req.Email,
		PrimaryPhysician: req.PrimaryPhysician,
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date_of_birth must be YYYY-MM-DD")
		}
		p.DateOfBirth = &dob
	}
	created, err := h.svc.CreatePatient(c.Request().Context(), p)
	if errors.Is(err, ErrDuplicateMRN) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"success": true, "patient": created})
}

func (h *Handler) Status(c echo.Context) error {
	status, err := h.svc.Status(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"status":    "healthy",
		"board":     status,
		"timestamp": time.Now().UTC(),
	})
}
