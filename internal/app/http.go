package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"campusconnect/api/internal/search"
	"campusconnect/api/internal/util"
)

const maxWebhookBody = 1 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/webhooks/notes" {
		s.handleWebhook(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search/notes" {
		s.handleSearch(w, r)
		return
	}

	if r.URL.Path == "/api/search/sync" {
		switch r.Method {
		case http.MethodGet:
			healthy, host := s.service.SyncStatus(r.Context())
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "healthy": healthy, "host": host})
		case http.MethodPost:
			if !s.requireAdmin(w, r) {
				return
			}
			result, err := s.service.SyncNow(r.Context())
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"message": "Full sync enqueued",
				"synced":  result.Synced,
				"total":   result.Total,
				"taskUid": result.TaskUID,
			})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search/stats" {
		if !s.requireAdmin(w, r) {
			return
		}
		stats, err := s.service.IndexStats(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
		return
	}

	parts := splitPath(r.URL.Path)
	if r.Method == http.MethodGet && len(parts) == 4 && parts[0] == "api" && parts[1] == "search" && parts[2] == "tasks" {
		if !s.requireAdmin(w, r) {
			return
		}
		uid, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil || uid < 0 {
			writeMappedError(w, validationError("task uid must be a non-negative integer"))
			return
		}
		task, err := s.service.Task(r.Context(), uid)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})
		return
	}

	if r.Method == http.MethodDelete && r.URL.Path == "/api/search/index" {
		if !s.requireAdmin(w, r) {
			return
		}
		if err := s.service.ClearIndex(r.Context()); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Index cleared; run a full sync to repopulate"})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"search":   map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if err := s.service.PingEngine(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["search"] = map[string]any{"status": "error", "error": err.Error()}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// handleWebhook verifies the signature over the exact bytes received, so
// the body is read raw and only decoded afterwards.
func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeMappedError(w, invalidPayload(err))
		return
	}

	message, err := s.service.ProcessWebhook(r.Context(), payload, r.Header.Get("Authorization"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	limit, err := queryInt(values.Get("limit"))
	if err != nil {
		writeMappedError(w, validationError("limit must be an integer"))
		return
	}
	offset, err := queryInt(values.Get("offset"))
	if err != nil {
		writeMappedError(w, validationError("offset must be an integer"))
		return
	}

	q := search.Query{
		Text:    values.Get("q"),
		Subject: strings.TrimSpace(values.Get("subject")),
		Limit:   limit,
		Offset:  offset,
	}
	results, err := s.service.Search(r.Context(), q)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"results":        results.Hits,
		"total":          results.TotalEstimate,
		"query":          results.Query,
		"processingTime": results.TookMs,
	})
}

func (s *HTTPServer) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if err := s.service.AuthorizeAdmin(r.Header.Get("X-Admin-Token")); err != nil {
		writeMappedError(w, err)
		return false
	}
	return true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		logAccess(requestID, r.Method, r.URL.Path, writer.status, time.Since(started))
	})
}

func logAccess(requestID, method, path string, status int, elapsed time.Duration) {
	log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
		requestID,
		method,
		path,
		status,
		elapsed.Milliseconds(),
	)
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Admin-Token")
	header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"success": false,
		"code":    code,
		"error":   message,
	}
	if details != nil {
		response["message"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func queryInt(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, search.ErrInvalidEvent) {
		return http.StatusBadRequest, "INVALID_EVENT", "Invalid change event", err.Error()
	}
	if errors.Is(err, search.ErrUnavailable) {
		return http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search engine unavailable", err.Error()
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", err.Error()
}
