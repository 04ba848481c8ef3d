package service

import (
	"context"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/pageinfo/pageinfo/internal/capture"
	"github.com/pageinfo/pageinfo/internal/common/captureid"
	"github.com/pageinfo/pageinfo/internal/common/urlutil"
	"github.com/pageinfo/pageinfo/internal/har"
	"github.com/pageinfo/pageinfo/internal/pageinfo"
	"github.com/pageinfo/pageinfo/internal/pipeline"
	"github.com/pageinfo/pageinfo/pkg/types"
)

// Error types returned in ErrorResponse.ErrorType besides capture outcomes
const (
	ErrorTypeInvalidRequest  = "invalid_request"
	ErrorTypeInvalidURL      = "invalid_url"
	ErrorTypeQueueFull       = "queue_full"
	ErrorTypeNotFound        = "not_found"
	ErrorTypeStorageDisabled = "storage_disabled"
	ErrorTypeStorage         = "storage"
	ErrorTypeInternal        = "internal"
)

// CaptureRequest is the body of POST /capture
type CaptureRequest struct {
	URL            string         `json:"url"`
	Label          string         `json:"label,omitempty"`
	Settle         types.Duration `json:"settle,omitempty"`
	IncludeContent bool           `json:"include_content,omitempty"`
	IncludeHAR     bool           `json:"include_har,omitempty"`
}

// CaptureResponse is returned for a successful capture
type CaptureResponse struct {
	Success    bool            `json:"success"`
	CaptureID  string          `json:"capture_id"`
	URL        string          `json:"url"`
	DurationMs int64           `json:"duration_ms"`
	Stored     bool            `json:"stored"`
	Report     *capture.Report `json:"report"`
	Info       *pageinfo.Info  `json:"info,omitempty"`
	Content    string          `json:"content,omitempty"`
	HAR        *har.HAR        `json:"har,omitempty"`
}

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

type LatestResponse struct {
	URL       string `json:"url"`
	CaptureID string `json:"capture_id"`
}

type HealthResponse struct {
	Status         string  `json:"status"`
	ServerID       string  `json:"server_id"`
	BrowserVersion string  `json:"browser_version,omitempty"`
	PagesOpen      int     `json:"pages_open"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Capacity       int     `json:"capacity"`
	InUse          int     `json:"in_use"`
	Served         int64   `json:"served"`
	Storage        bool    `json:"storage"`
}

func (s *Server) handleCapture(ctx *fasthttp.RequestCtx) {
	const endpoint = "capture"

	var req CaptureRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, ErrorTypeInvalidRequest, "Invalid JSON body", endpoint)
		s.logger.Warn("Invalid capture request body", zap.Error(err))
		return
	}

	target, err := urlutil.ValidateTarget(req.URL, s.cfg.AllowPrivate)
	if err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, ErrorTypeInvalidURL, err.Error(), endpoint)
		return
	}

	settle := req.Settle.ToDuration()
	if settle < 0 || settle > s.cfg.MaxSettle {
		s.writeError(ctx, fasthttp.StatusBadRequest, ErrorTypeInvalidRequest,
			"settle must be between 0 and "+s.cfg.MaxSettle.String(), endpoint)
		return
	}

	if !s.slots.TryAcquire(1) {
		s.recorder.RecordQueueRejection()
		s.writeError(ctx, fasthttp.StatusServiceUnavailable, ErrorTypeQueueFull, "All capture slots are busy", endpoint)
		s.logger.Warn("Capture rejected, all slots busy",
			zap.String("url", target),
			zap.Int("capacity", s.cfg.MaxConcurrent))
		return
	}
	s.inUse.Add(1)
	defer func() {
		s.inUse.Add(-1)
		s.slots.Release(1)
	}()

	runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()

	out, err := s.runner.Run(runCtx, pipeline.Request{URL: target, Label: req.Label, Settle: settle})
	s.served.Add(1)
	if err != nil {
		outcome := capture.Outcome(err)
		status := fasthttp.StatusBadGateway
		if outcome == capture.OutcomeTimeout {
			status = fasthttp.StatusGatewayTimeout
		}
		s.writeError(ctx, status, outcome, err.Error(), endpoint)
		s.logger.Error("Capture failed",
			zap.String("url", target),
			zap.String("outcome", outcome),
			zap.Error(err))
		return
	}

	resp := CaptureResponse{
		Success:    true,
		CaptureID:  out.CaptureID,
		URL:        target,
		DurationMs: out.Duration.Milliseconds(),
		Stored:     out.Stored,
		Report:     out.Result.Report,
		Info:       out.Info,
	}
	if req.IncludeContent {
		resp.Content = out.Result.Content
	}
	if req.IncludeHAR {
		resp.HAR = out.HAR
	}

	s.writeJSON(ctx, fasthttp.StatusOK, resp, endpoint)
	s.logger.Info("Capture successful",
		zap.String("capture_id", out.CaptureID),
		zap.String("url", target),
		zap.Duration("duration", out.Duration),
		zap.Int("requests", out.Result.Report.TotalRequests),
		zap.Bool("stored", out.Stored))
}

func (s *Server) handleHAR(ctx *fasthttp.RequestCtx, id string) {
	const endpoint = "har"

	if s.store == nil {
		s.writeError(ctx, fasthttp.StatusServiceUnavailable, ErrorTypeStorageDisabled, "Storage is disabled", endpoint)
		return
	}
	if !captureid.Valid(id) {
		s.writeError(ctx, fasthttp.StatusBadRequest, ErrorTypeInvalidRequest, "Invalid capture id", endpoint)
		return
	}

	storeCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	entry, err := s.store.GetCapture(storeCtx, id)
	if err != nil {
		s.writeError(ctx, fasthttp.StatusInternalServerError, ErrorTypeStorage, "Failed to load capture", endpoint)
		s.logger.Error("Failed to load capture", zap.String("capture_id", id), zap.Error(err))
		return
	}
	if entry == nil {
		s.writeError(ctx, fasthttp.StatusNotFound, ErrorTypeNotFound, "Capture not found", endpoint)
		return
	}

	ctx.Response.Header.Set("Content-Disposition", `attachment; filename="`+id+`.har"`)
	s.writeJSON(ctx, fasthttp.StatusOK, entry.HAR, endpoint)
}

func (s *Server) handleLatest(ctx *fasthttp.RequestCtx) {
	const endpoint = "latest"

	if s.store == nil {
		s.writeError(ctx, fasthttp.StatusServiceUnavailable, ErrorTypeStorageDisabled, "Storage is disabled", endpoint)
		return
	}
	pageURL := string(ctx.QueryArgs().Peek("url"))
	if pageURL == "" {
		s.writeError(ctx, fasthttp.StatusBadRequest, ErrorTypeInvalidRequest, "url query parameter is required", endpoint)
		return
	}

	storeCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	id, err := s.store.LatestCaptureID(storeCtx, pageURL)
	if err != nil {
		s.writeError(ctx, fasthttp.StatusInternalServerError, ErrorTypeStorage, "Failed to look up capture", endpoint)
		s.logger.Error("Failed to look up latest capture", zap.String("url", pageURL), zap.Error(err))
		return
	}
	if id == "" {
		s.writeError(ctx, fasthttp.StatusNotFound, ErrorTypeNotFound, "No capture for url", endpoint)
		return
	}

	s.writeJSON(ctx, fasthttp.StatusOK, LatestResponse{URL: pageURL, CaptureID: id}, endpoint)
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:         "ok",
		ServerID:       s.cfg.ServerID,
		BrowserVersion: s.browser.Version(),
		PagesOpen:      s.browser.PagesOpen(),
		UptimeSeconds:  s.browser.Uptime().Seconds(),
		Capacity:       s.cfg.MaxConcurrent,
		InUse:          s.InUse(),
		Served:         s.served.Load(),
		Storage:        s.store != nil,
	}

	status := fasthttp.StatusOK
	if !s.browser.IsAlive(checkCtx) {
		resp.Status = "unavailable"
		status = fasthttp.StatusServiceUnavailable
	}
	s.writeJSON(ctx, status, resp, "health")
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, statusCode int, response interface{}, endpoint string) {
	body, err := json.Marshal(response)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"success":false,"error":"Failed to marshal response","error_type":"internal"}`)
		ctx.SetContentType("application/json")
		s.recorder.RecordHTTPRequest(endpoint, "500")
		s.logger.Error("Failed to marshal JSON response",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return
	}

	ctx.SetStatusCode(statusCode)
	ctx.SetBody(body)
	ctx.SetContentType("application/json")
	s.recorder.RecordHTTPRequest(endpoint, strconv.Itoa(statusCode))
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, statusCode int, errorType, message, endpoint string) {
	s.writeJSON(ctx, statusCode, ErrorResponse{
		Success:   false,
		Error:     message,
		ErrorType: errorType,
	}, endpoint)
}
