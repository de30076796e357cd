package intake

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/scc/scc/internal/platform/auth"
	"github.com/scc/scc/internal/platform/extract"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "surgeon", "nurse", "coordinator"))
	readGroup.GET("/intake/status/:id", h.NoteStatus)
	readGroup.GET("/intake/recent", h.Recent)
	readGroup.GET("/status", h.ServiceStatus)

	writeGroup := api.Group("", auth.RequireRole("admin", "physician", "surgeon", "coordinator"))
	writeGroup.POST("/intake/plaud", h.IntakePlaud)
	writeGroup.POST("/intake/zapier", h.IntakeZapier)
	writeGroup.POST("/analyze", h.Analyze)
}

func (h *Handler) IntakePlaud(c echo.Context) error {
	var in IngestInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return h.ingest(c, in)
}

// Fallback field names tried, in order, when normalizing a Zapier
// payload. Zap templates name fields inconsistently across triggers.
var (
	zapierTranscriptFields = []string{"transcript", "text", "content", "transcription", "note_text", "body"}
	zapierSummaryFields    = []string{"summary", "title", "subject"}
	zapierMRNFields        = []string{"mrn", "patient_mrn", "medical_record_number", "MRN", "chart_number"}
	zapierNameFields       = []string{"patient_name", "name", "patient", "full_name"}
	zapierCapturedFields   = []string{"captured_at", "date", "timestamp", "created_at", "recording_date"}
	zapierAudioFields      = []string{"audio_url", "audio_ref", "recording_url", "file_url"}
)

func (h *Handler) IntakeZapier(c echo.Context) error {
	var payload map[string]any
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	transcript := firstString(payload, zapierTranscriptFields)
	if strings.TrimSpace(transcript) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf(
			"no transcript found in payload; tried fields: %s",
			strings.Join(zapierTranscriptFields, ", ")))
	}

	in := IngestInput{
		Transcript: transcript,
		MRN:        firstString(payload, zapierMRNFields),
		Provenance: map[string]any{"source": "zapier"},
	}
	if v := firstString(payload, zapierSummaryFields); v != "" {
		in.Summary = &v
	}
	if v := firstString(payload, zapierNameFields); v != "" {
		in.PatientName = &v
	}
	if v := firstString(payload, zapierAudioFields); v != "" {
		in.AudioRef = &v
	}
	if v := firstString(payload, zapierCapturedFields); v != "" {
		if ts := parseTimestamp(v); ts != nil {
			in.CapturedAt = ts
		}
	}
	for _, key := range []string{"zap_id", "trigger"} {
		if v, ok := payload[key]; ok {
			in.Provenance[key] = v
		}
	}
	return h.ingest(c, in)
}

func (h *Handler) ingest(c echo.Context, in IngestInput) error {
	result, err := h.svc.Ingest(c.Request().Context(), in)
	if errors.Is(err, ErrEmptyTranscript) {
		return echo.NewHTTPError(http.StatusBadRequest, "transcript is required")
	}
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	return c.JSON(status, map[string]interface{}{"success": true, "result": result})
}

func (h *Handler) NoteStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid voice note id")
	}
	note, err := h.svc.GetNote(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "voice note not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "voice_note": note})
}

func (h *Handler) Recent(c echo.Context) error {
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	notes, err := h.svc.Recent(c.Request().Context(), c.QueryParam("status"), c.QueryParam("mrn"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"count":       len(notes),
		"voice_notes": notes,
	})
}

type analyzeRequest struct {
	Transcript    string `json:"transcript"`
	PatientName   string `json:"patient_name,omitempty"`
	MRN           string `json:"mrn,omitempty"`
	ProcedureType string `json:"procedure_type,omitempty"`
}

func (h *Handler) Analyze(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := h.svc.Analyze(c.Request().Context(), req.Transcript, extract.NoteContext{
		PatientName:   req.PatientName,
		MRN:           req.MRN,
		ProcedureType: req.ProcedureType,
	})
	if errors.Is(err, ErrExtractionUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "extraction service not configured")
	}
	if errors.Is(err, ErrEmptyTranscript) {
		return echo.NewHTTPError(http.StatusBadRequest, "transcript is required")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ServiceStatus(c echo.Context) error {
	st := h.svc.Status(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     st.Status,
		"service":    "intake",
		"database":   st.Database,
		"claude_api": st.ClaudeAPI,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func firstString(payload map[string]any, keys []string) string {
	for _, key := range keys {
		if v, ok := payload[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func parseTimestamp(v string) *time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, v); err == nil {
			return &ts
		}
	}
	return nil
}
