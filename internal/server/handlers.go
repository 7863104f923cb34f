package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/hdbexport/internal/errs"
	"github.com/koustreak/hdbexport/internal/logger"
)

const (
	contentTypeJSON  = "application/json"
	contentTypeYAML  = "application/yaml"
	contentTypeCSV   = "text/csv; charset=utf-8"
	contentTypeArrow = "application/vnd.apache.arrow.stream"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.exp.Ping(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQueryCSV(w http.ResponseWriter, r *http.Request) {
	query, err := readQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cw := &csvResponse{w: w}
	stats, err := s.exp.ExportCSV(r.Context(), query, cw)
	if err != nil {
		if !cw.started {
			s.writeError(w, r, err)
			return
		}
		// Status and part of the body are already on the wire.
		logger.FromContext(r.Context()).ErrorWith("csv stream aborted", err, map[string]any{"rows": stats.Rows})
	}
}

func (s *Server) handleQueryTable(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "yaml" && format != "arrow" {
		s.writeError(w, r, errs.New(errs.ErrKindInvalidInput, "unsupported format "+format+": use json, yaml or arrow"))
		return
	}

	query, err := readQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tbl, err := s.exp.ToTable(r.Context(), query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var (
		body        []byte
		contentType string
	)
	switch format {
	case "yaml":
		body, err = yaml.Marshal(tbl)
		contentType = contentTypeYAML
	case "arrow":
		var buf bytes.Buffer
		err = tbl.WriteArrowIPC(&buf)
		body, contentType = buf.Bytes(), contentTypeArrow
	default:
		body, err = json.Marshal(tbl)
		contentType = contentTypeJSON
	}
	if err != nil {
		s.writeError(w, r, errs.Wrap(errs.ErrKindIO, "failed to encode "+format+" response", err))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// readQuery returns the SQL text carried by the request body.
func readQuery(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxQueryBytes+1))
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "failed to read request body", err)
	}
	if len(body) > maxQueryBytes {
		return "", errs.New(errs.ErrKindInvalidInput, "query text too large")
	}
	query := strings.TrimSpace(string(body))
	if query == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "query text is empty")
	}
	return query, nil
}

// csvResponse commits the 200 status and content type on the first write so
// that a query that fails before producing output still gets an error status.
type csvResponse struct {
	w       http.ResponseWriter
	started bool
}

func (c *csvResponse) start() {
	c.started = true
	c.w.Header().Set("Content-Type", contentTypeCSV)
	c.w.WriteHeader(http.StatusOK)
}

func (c *csvResponse) Write(p []byte) (int, error) {
	if !c.started {
		c.start()
	}
	n, err := c.w.Write(p)
	if err == nil {
		if f, ok := c.w.(http.Flusher); ok {
			f.Flush()
		}
	}
	return n, err
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.ErrorWith("request failed", err, map[string]any{"status": status})
	} else {
		log.DebugWith("request rejected", map[string]any{"status": status, "error": err.Error()})
	}

	writeJSON(w, status, errorResponse{
		Error:     publicMessage(err),
		Kind:      errs.KindOf(err).String(),
		RequestID: chimw.GetReqID(r.Context()),
	})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindInvalidInput, errs.ErrKindQueryFailed:
		return http.StatusBadRequest
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindConnectionFailed:
		return http.StatusBadGateway
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the primary error's text. Secondary close failures stay
// in the logs.
func publicMessage(err error) string {
	return errs.Primary(err).Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
