package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
	"github.com/kirillkom/document-validity-gateway/internal/core/ports"
	"github.com/kirillkom/document-validity-gateway/internal/observability/metrics"
)

type Router struct {
	sessions ports.SessionDirectory
	intake   ports.IntakeService
	batch    ports.BatchService
	validity ports.ValidityService
	exporter ports.ReportExporter

	maxUploadBytes int64
	rateLimitRPS   float64
	rateLimitBurst int
	submitSlots    int

	gatewayMetrics *metrics.GatewayMetrics
	metricsHandler http.Handler
}

type RouterOptions struct {
	MaxUploadBytes int64
	RateLimitRPS   float64
	RateLimitBurst int

	// SubmitSlots bounds concurrently running submit and validity calls
	// across all sessions. Zero disables the gate.
	SubmitSlots int

	GatewayMetrics *metrics.GatewayMetrics
	MetricsHandler http.Handler
}

func NewRouter(
	sessions ports.SessionDirectory,
	intake ports.IntakeService,
	batch ports.BatchService,
	validity ports.ValidityService,
	exporter ports.ReportExporter,
	options RouterOptions,
) *Router {
	maxUploadBytes := options.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	return &Router{
		sessions:       sessions,
		intake:         intake,
		batch:          batch,
		validity:       validity,
		exporter:       exporter,
		maxUploadBytes: maxUploadBytes,
		rateLimitRPS:   options.RateLimitRPS,
		rateLimitBurst: options.RateLimitBurst,
		submitSlots:    options.SubmitSlots,
		gatewayMetrics: options.GatewayMetrics,
		metricsHandler: options.MetricsHandler,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metricsHandler != nil {
		mux.Handle("GET /metrics", rt.metricsHandler)
	}

	mux.HandleFunc("POST /v1/sessions", rt.createSession)
	mux.HandleFunc("POST /v1/sessions/{sessionID}/items", rt.uploadItem)
	mux.HandleFunc("POST /v1/sessions/{sessionID}/items/url", rt.addURLItem)
	mux.HandleFunc("DELETE /v1/sessions/{sessionID}/items/{itemID}", rt.removeItem)
	mux.HandleFunc("GET /v1/sessions/{sessionID}/items", rt.listItems)
	mux.HandleFunc("GET /v1/sessions/{sessionID}/records", rt.classifiedRecords)

	pipeline := backpressureMiddleware(http.HandlerFunc(rt.pipelineDispatch), rt.submitSlots, 50*time.Millisecond)
	mux.Handle("POST /v1/sessions/{sessionID}/submit", pipeline)
	mux.Handle("POST /v1/sessions/{sessionID}/validity", pipeline)

	mux.HandleFunc("GET /v1/sessions/{sessionID}/report.xlsx", rt.downloadReport)

	handler := rateLimitMiddleware(mux, rt.rateLimitRPS, rt.rateLimitBurst)
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := rt.sessions.CreateSession(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
}

func (rt *Router) uploadItem(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read uploaded file: " + err.Error()})
		return
	}

	item, err := rt.intake.AddFile(r.Context(), r.PathValue("sessionID"), fileHeader.Filename, content)
	if err != nil {
		rt.recordIntakeRejection(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (rt *Router) addURLItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}

	item, err := rt.intake.AddURL(r.Context(), r.PathValue("sessionID"), req.URL)
	if err != nil {
		rt.recordIntakeRejection(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (rt *Router) removeItem(w http.ResponseWriter, r *http.Request) {
	if err := rt.intake.RemoveItem(r.Context(), r.PathValue("sessionID"), r.PathValue("itemID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := rt.intake.ListItems(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (rt *Router) classifiedRecords(w http.ResponseWriter, r *http.Request) {
	state, err := rt.batch.ClassifiedState(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// pipelineDispatch serves both pipeline phases behind one backpressure gate:
// the two downstream services share the same capacity concern.
func (rt *Router) pipelineDispatch(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/submit") {
		rt.submitBatch(w, r)
		return
	}
	rt.checkValidity(w, r)
}

func (rt *Router) submitBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	state, err := rt.batch.Submit(r.Context(), r.PathValue("sessionID"))
	rt.recordBatch(state, time.Since(start), err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (rt *Router) checkValidity(w http.ResponseWriter, r *http.Request) {
	var rng domain.ValidityRange
	if err := json.NewDecoder(r.Body).Decode(&rng); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	result, err := rt.validity.Check(r.Context(), r.PathValue("sessionID"), rng)
	rt.recordValidity(result, time.Since(start), err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) downloadReport(w http.ResponseWriter, r *http.Request) {
	result, err := rt.validity.CurrentResult(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if result == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no validity result for this session yet"})
		return
	}

	payload, err := rt.exporter.Export(result)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="validity-report.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (rt *Router) recordIntakeRejection(err error) {
	if rt.gatewayMetrics == nil {
		return
	}
	reason := "invalid_input"
	switch {
	case domain.IsKind(err, domain.ErrEmptyFile):
		reason = "empty_file"
	case domain.IsKind(err, domain.ErrInvalidURL):
		reason = "invalid_url"
	case domain.IsKind(err, domain.ErrSessionNotFound):
		reason = "unknown_session"
	}
	rt.gatewayMetrics.RecordIntakeRejection("gateway", reason)
}

func (rt *Router) recordBatch(state *domain.ClassifiedState, duration time.Duration, err error) {
	if rt.gatewayMetrics == nil {
		return
	}
	var (
		itemCount int
		byType    map[domain.DocType]int
	)
	if err == nil && state != nil {
		byType = make(map[domain.DocType]int, len(state.Records))
		for docType, bucket := range state.Records {
			byType[docType] = len(bucket)
			itemCount += len(bucket)
		}
	}
	rt.gatewayMetrics.RecordBatch("gateway", itemCount, byType, duration, err)
}

func (rt *Router) recordValidity(result *domain.ValidityResult, duration time.Duration, err error) {
	if rt.gatewayMetrics == nil {
		return
	}
	var validByType map[domain.DocType]int
	if err == nil && result != nil {
		validByType = make(map[domain.DocType]int, len(result.Valid))
		for docType, records := range result.Valid {
			validByType[docType] = len(records)
		}
	}
	rt.gatewayMetrics.RecordValidityCheck("gateway", validByType, duration, err)
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	body := map[string]string{"error": err.Error()}

	var rejected *domain.BatchRejectedError
	if errors.As(err, &rejected) {
		body["code"] = rejected.Code
		if rejected.Filename != "" {
			body["filename"] = rejected.Filename
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
