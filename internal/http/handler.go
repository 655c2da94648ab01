package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"forecourt-service/internal/config"
	"forecourt-service/internal/domain/forecourt"
	"forecourt-service/internal/eventlog"
	"forecourt-service/internal/http/middleware"
	"forecourt-service/internal/model"
	"forecourt-service/internal/report"
	"forecourt-service/internal/service"
)

const (
	maxFrameUpload = 10 << 20
	sseContentType = "text/event-stream;charset=utf-8"
)

type Handler struct {
	monitor *service.MonitorService
	config  *config.Config
	log     zerolog.Logger
}

func NewHandler(
	monitor *service.MonitorService,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		monitor: monitor,
		config:  cfg,
		log:     log.With().Str("component", "http").Logger(),
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	public := r.Group("/api/v1")
	{
		public.GET("/status", h.getStatus)
		public.GET("/regions", h.listRegions)
		public.GET("/camera", h.getCamera)
		public.GET("/frame-dimensions", h.getFrameDimensions)
		public.GET("/events", h.listEvents)
		public.GET("/events/stream", h.streamEvents)
		public.GET("/events/export", h.exportEvents)
		public.GET("/inferences", h.listInferences)
		public.GET("/inferences/stream", h.streamInferences)
		public.GET("/alerts", h.listAlerts)
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.POST("/frames", middleware.Require(model.Principal.CanIngest), h.ingestFrame)
		protected.POST("/regions", middleware.Require(model.Principal.CanConfigure), h.upsertRegions)
		protected.PUT("/camera", middleware.Require(model.Principal.CanConfigure), h.updateCamera)
	}
}

type frameRequest struct {
	Timestamp   *time.Time            `json:"timestamp"`
	InferenceMs float64               `json:"inference_ms"`
	Width       int                   `json:"width"`
	Height      int                   `json:"height"`
	Detections  []forecourt.Detection `json:"detections"`
	// Image is an optional base64 encoded JPEG or PNG of the frame.
	Image string `json:"image,omitempty"`
}

func (h *Handler) ingestFrame(c *gin.Context) {
	var (
		req frameRequest
		img image.Image
		err error
	)

	limit := h.config.HTTP.MaxFrameBytes
	if limit <= 0 {
		limit = maxFrameUpload
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req, img, err = parseMultipartFrame(c.Request, limit)
	} else {
		req, img, err = parseJSONFrame(c.Request.Body)
	}
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.log.Warn().Err(err).Int("status", status).Msg("rejected frame payload")
		c.JSON(status, errorResponse(err.Error()))
		return
	}

	input := service.FrameInput{
		Timestamp:   time.Now(),
		Detections:  req.Detections,
		InferenceMs: req.InferenceMs,
		Width:       req.Width,
		Height:      req.Height,
		Image:       img,
	}
	if req.Timestamp != nil {
		input.Timestamp = *req.Timestamp
	}
	if img != nil && input.Width == 0 && input.Height == 0 {
		b := img.Bounds()
		input.Width, input.Height = b.Dx(), b.Dy()
	}

	result, err := h.monitor.ProcessFrame(c.Request.Context(), input)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

func parseJSONFrame(body io.Reader) (frameRequest, image.Image, error) {
	var req frameRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return req, nil, fmt.Errorf("invalid frame json: %w", err)
	}
	if req.Image == "" {
		return req, nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		return req, nil, fmt.Errorf("image is not valid base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return req, nil, fmt.Errorf("image could not be decoded: %w", err)
	}
	return req, img, nil
}

// parseMultipartFrame reads a "frame" JSON field and an optional "image" file.
func parseMultipartFrame(r *http.Request, maxMemory int64) (frameRequest, image.Image, error) {
	var req frameRequest
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return req, nil, fmt.Errorf("invalid multipart payload: %w", err)
	}

	meta := r.FormValue("frame")
	if meta == "" {
		return req, nil, errors.New("frame field is required")
	}
	req, _, err := parseJSONFrame(strings.NewReader(meta))
	if err != nil {
		return req, nil, err
	}

	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, fmt.Errorf("read image: %w", err)
	}
	defer file.Close()

	img, err := decodeImage(file)
	if err != nil {
		return req, nil, err
	}
	return req, img, nil
}

func decodeImage(file multipart.File) (image.Image, error) {
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("image could not be decoded: %w", err)
	}
	return img, nil
}

func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.monitor.LastResult()))
}

func (h *Handler) listRegions(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.monitor.Regions()))
}

type regionsRequest struct {
	ROIs []map[string]json.RawMessage `json:"rois"`
}

func (h *Handler) upsertRegions(c *gin.Context) {
	var req regionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if len(req.ROIs) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse("rois must contain at least one region"))
		return
	}

	var (
		inputs   []service.RegionInput
		rejected []service.RegionRejection
	)
	for i, raw := range req.ROIs {
		input, err := parseRegion(i, raw)
		if err != nil {
			rejected = append(rejected, service.RegionRejection{Index: i, Label: input.Label, Reason: err.Error()})
			continue
		}
		inputs = append(inputs, input)
	}

	result := h.monitor.UpsertRegions(c.Request.Context(), inputs)
	result.Rejected = append(rejected, result.Rejected...)

	status := http.StatusOK
	if len(result.Accepted) == 0 {
		status = http.StatusBadRequest
	}

	h.log.Info().
		Int("accepted", len(result.Accepted)).
		Int("rejected", len(result.Rejected)).
		Int("total", len(result.Regions)).
		Msg("regions update processed")

	c.JSON(status, successResponse(result))
}

// parseRegion reads {"label", "x1", "y1", "x2", "y2"}. Coordinates may be JSON numbers or numeric strings.
func parseRegion(index int, raw map[string]json.RawMessage) (service.RegionInput, error) {
	input := service.RegionInput{Index: index}

	labelRaw, ok := raw["label"]
	if !ok {
		return input, errors.New("label is required")
	}
	if err := json.Unmarshal(labelRaw, &input.Label); err != nil {
		return input, errors.New("label must be a string")
	}

	coords := make([]float64, 4)
	for i, key := range []string{"x1", "y1", "x2", "y2"} {
		v, ok := raw[key]
		if !ok {
			return input, fmt.Errorf("%s is required", key)
		}
		f, err := parseCoordinate(v)
		if err != nil {
			return input, fmt.Errorf("%s: %v", key, err)
		}
		coords[i] = f
	}
	input.Box = forecourt.Box{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}
	return input, nil
}

func parseCoordinate(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, errors.New("must be a number")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return f, nil
}

func (h *Handler) getCamera(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.monitor.Camera()))
}

func (h *Handler) updateCamera(c *gin.Context) {
	var req service.CameraUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	camera, err := h.monitor.UpdateCamera(req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(camera))
}

func (h *Handler) getFrameDimensions(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.FrameDimensions())
}

type logResponse struct {
	Entries  []eventlog.Entry `json:"entries"`
	Messages []string         `json:"messages"`
	LastSeq  uint64           `json:"last_seq"`
	Capacity int              `json:"capacity"`
}

func newLogResponse(log *eventlog.Log, since uint64) logResponse {
	entries := log.Since(since)
	if entries == nil {
		entries = []eventlog.Entry{}
	}
	messages := make([]string, len(entries))
	for i, e := range entries {
		messages[i] = e.String()
	}
	return logResponse{
		Entries:  entries,
		Messages: messages,
		LastSeq:  log.LastSeq(),
		Capacity: log.Cap(),
	}
}

func (h *Handler) listEvents(c *gin.Context) {
	since, err := parseSince(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, successResponse(newLogResponse(h.monitor.EventLog(), since)))
}

func (h *Handler) listInferences(c *gin.Context) {
	since, err := parseSince(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, successResponse(newLogResponse(h.monitor.InferenceLog(), since)))
}

func (h *Handler) streamEvents(c *gin.Context) {
	h.streamLog(c, h.monitor.EventLog(), "event")
}

func (h *Handler) streamInferences(c *gin.Context) {
	h.streamLog(c, h.monitor.InferenceLog(), "inference")
}

// streamLog pushes new log entries as server-sent events until the client goes away.
func (h *Handler) streamLog(c *gin.Context, log *eventlog.Log, event string) {
	last, err := parseSince(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	interval := h.config.Logs.StreamInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Matches what gin's SSE renderer writes so an idle stream carries the same type.
	c.Header("Content-Type", sseContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	for {
		for _, e := range log.Since(last) {
			c.SSEvent(event, e)
			last = e.Seq
		}
		c.Writer.Flush()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Handler) exportEvents(c *gin.Context) {
	camera := h.monitor.Camera()
	var buf bytes.Buffer
	if err := report.WriteEvents(&buf, h.monitor.EventLog().Snapshot(), camera); err != nil {
		h.log.Error().Err(err).Msg("failed to build events export")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	filename := report.Filename(camera, time.Now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *Handler) listAlerts(c *gin.Context) {
	query := service.AlertQuery{Limit: 50}
	if kind := strings.TrimSpace(c.Query("kind")); kind != "" {
		query.Kind = &kind
	}
	if region := strings.TrimSpace(c.Query("region")); region != "" {
		query.Region = &region
	}
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		query.From = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		query.To = &t
	}
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			query.Limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			query.Offset = parsed
		}
	}

	alerts, err := h.monitor.FindAlerts(c.Request.Context(), query)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(alerts))
}

func parseSince(c *gin.Context) (uint64, error) {
	raw := strings.TrimSpace(c.Query("since"))
	if raw == "" {
		return 0, nil
	}
	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("since must be a non-negative integer")
	}
	return since, nil
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
