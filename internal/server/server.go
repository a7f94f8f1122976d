package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kiesman99/pixelsort/internal/api"
	"github.com/kiesman99/pixelsort/internal/imageio"
	"github.com/kiesman99/pixelsort/internal/processor"
	"github.com/kiesman99/pixelsort/pkg/pixelsort"
)

// DefaultMaxUpload bounds request bodies when Config.MaxUpload is unset.
const DefaultMaxUpload = 32 << 20

// MaxPasses bounds the passes query parameter.
const MaxPasses = 16

// Config holds the server settings
type Config struct {
	Version   string
	Workers   int
	MaxUpload int64
	Logger    *slog.Logger
}

// Server implements the ServerInterface from the generated API
type Server struct {
	startTime time.Time
	version   string
	maxUpload int64
	proc      *processor.Processor
	logger    *slog.Logger
}

// NewServer creates a new server instance
func NewServer(cfg Config) *Server {
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = DefaultMaxUpload
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		startTime: time.Now(),
		version:   cfg.Version,
		maxUpload: cfg.MaxUpload,
		proc:      processor.New(cfg.Workers),
		logger:    cfg.Logger,
	}
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())
	workers := s.proc.Engine().Workers()

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
		Workers:   &workers,
	}

	s.writeJSON(w, http.StatusOK, response)
}

// ListSortModes lists the accepted values of the mode parameter
func (s *Server) ListSortModes(w http.ResponseWriter, r *http.Request) {
	modes := pixelsort.SortModes()
	response := api.ModesResponse{
		Default: api.SortMode(pixelsort.DefaultSettings().Mode.String()),
		Modes:   make([]api.SortMode, len(modes)),
	}
	for i, m := range modes {
		response.Modes[i] = api.SortMode(m.String())
	}

	s.writeJSON(w, http.StatusOK, response)
}

// SortImage sorts the spans of the image in the request body
func (s *Server) SortImage(w http.ResponseWriter, r *http.Request, params api.SortImageParams) {
	requestID := requestIDFrom(r)

	opts, fieldErrs := convertSortParams(params)
	if len(fieldErrs) > 0 {
		s.writeValidationErrorResponse(w, fieldErrs, &requestID)
		return
	}

	s.process(w, r, opts, requestID)
}

// PreviewThresholds renders the threshold band of the image in the request
// body: white where a pixel would be sorted, black elsewhere.
func (s *Server) PreviewThresholds(w http.ResponseWriter, r *http.Request, params api.PreviewThresholdsParams) {
	requestID := requestIDFrom(r)

	opts, fieldErrs := convertSortParams(api.SortImageParams{
		Min:    params.Min,
		Max:    params.Max,
		Format: params.Format,
	})
	if len(fieldErrs) > 0 {
		s.writeValidationErrorResponse(w, fieldErrs, &requestID)
		return
	}
	opts.Settings.ShowThresholds = true

	s.process(w, r, opts, requestID)
}

func (s *Server) process(w http.ResponseWriter, r *http.Request, opts *processor.Options, requestID string) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), &requestID, nil)
			return
		}
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_IMAGE",
			"Could not read request body", &requestID, nil)
		return
	}
	if len(data) == 0 {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_IMAGE",
			"Request body must contain an encoded image", &requestID, nil)
		return
	}

	result, err := s.proc.Process(r.Context(), data, opts)
	if err != nil {
		s.handleProcessingError(w, err, &requestID)
		return
	}

	s.logger.Debug("processed image",
		"request_id", requestID,
		"input_format", result.InputFormat,
		"format", result.Format,
		"width", result.Width,
		"height", result.Height,
		"spans", result.Stats.Spans,
		"elapsed", result.Elapsed,
	)

	w.Header().Set("Content-Type", result.Format.ContentType())
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("X-Pixelsort-Spans", strconv.Itoa(result.Stats.Spans))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.ImageData)))

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.ImageData); err != nil {
		s.logger.Warn("error writing response", "request_id", requestID, "error", err)
	}
}

type fieldError struct {
	field   string
	message string
}

// convertSortParams converts query parameters to processor options. Range
// errors are reported per field; min > max is left to the engine.
func convertSortParams(params api.SortImageParams) (*processor.Options, []fieldError) {
	var errs []fieldError
	opts := &processor.Options{Settings: pixelsort.DefaultSettings(), Passes: 1}

	byteParam := func(name string, v *int, dest *uint8) {
		if v == nil {
			return
		}
		if *v < 0 || *v > 255 {
			errs = append(errs, fieldError{name, fmt.Sprintf("%s must be between 0 and 255", name)})
			return
		}
		*dest = uint8(*v)
	}
	byteParam("min", params.Min, &opts.Settings.Threshold.Min)
	byteParam("max", params.Max, &opts.Settings.Threshold.Max)

	if params.Mode != nil {
		mode, err := pixelsort.ParseSortMode(string(*params.Mode))
		if err != nil {
			errs = append(errs, fieldError{"mode", err.Error()})
		} else {
			opts.Settings.Mode = mode
		}
	}
	if params.Vertical != nil {
		opts.Settings.Vertical = *params.Vertical
	}
	if params.Invert != nil {
		opts.Settings.Invert = *params.Invert
	}

	if params.Passes != nil {
		if *params.Passes < 1 || *params.Passes > MaxPasses {
			errs = append(errs, fieldError{"passes", fmt.Sprintf("passes must be between 1 and %d", MaxPasses)})
		} else {
			opts.Passes = *params.Passes
		}
	}

	if params.Format != nil {
		f, err := imageio.ParseFormat(string(*params.Format))
		switch {
		case err != nil:
			errs = append(errs, fieldError{"format", err.Error()})
		case !f.CanEncode():
			errs = append(errs, fieldError{"format", fmt.Sprintf("cannot encode %s", f)})
		default:
			opts.OutputFormat = f
		}
	}

	if params.Quality != nil {
		if *params.Quality < 1 || *params.Quality > 100 {
			errs = append(errs, fieldError{"quality", "quality must be between 1 and 100"})
		} else {
			opts.Quality = *params.Quality
		}
	}

	return opts, errs
}

// handleProcessingError maps processor errors to API error responses
func (s *Server) handleProcessingError(w http.ResponseWriter, err error, requestID *string) {
	var inputErr *processor.InputError

	switch {
	case errors.Is(err, pixelsort.ErrInvalidThreshold):
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, "INVALID_THRESHOLD",
			err.Error(), requestID, nil)
	case errors.Is(err, pixelsort.ErrUnsupportedPixelFormat):
		s.writeErrorResponse(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_PIXEL_FORMAT",
			err.Error(), requestID, nil)
	case errors.Is(err, imageio.ErrTooLarge):
		s.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
			err.Error(), requestID, map[string]interface{}{
				"max_pixels": imageio.MaxPixels,
			})
	case errors.As(err, &inputErr):
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_IMAGE",
			err.Error(), requestID, nil)
	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, http.StatusGatewayTimeout, "TIMEOUT",
			"Request timed out before sorting started", requestID, nil)
	case errors.Is(err, context.Canceled):
		s.logger.Debug("request canceled", "request_id", *requestID)
	default:
		s.logger.Error("processing failed", "request_id", *requestID, "error", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Internal server error", requestID, nil)
	}
}

// HandleParamError reports query parameters that could not be bound.
func (s *Server) HandleParamError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := requestIDFrom(r)

	field := "request"
	var paramErr *api.InvalidParamFormatError
	if errors.As(err, &paramErr) {
		field = paramErr.ParamName
	}
	s.writeValidationErrorResponse(w, []fieldError{{field, err.Error()}}, &requestID)
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}

	if details != nil {
		response.Details = &details
	}

	if requestID != nil {
		w.Header().Set("X-Request-ID", *requestID)
	}
	s.writeJSON(w, statusCode, response)
}

// writeValidationErrorResponse writes a validation error response
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, errs []fieldError, requestID *string) {
	response := api.ValidationErrorResponse{
		Error:     api.VALIDATIONERROR,
		Message:   "Invalid request parameters",
		RequestId: requestID,
	}
	for _, fe := range errs {
		response.ValidationErrors = append(response.ValidationErrors, struct {
			Code    *string `json:"code,omitempty"`
			Field   string  `json:"field"`
			Message string  `json:"message"`
		}{
			Field:   fe.field,
			Message: fe.message,
		})
	}

	if requestID != nil {
		w.Header().Set("X-Request-ID", *requestID)
	}
	s.writeJSON(w, http.StatusBadRequest, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("error encoding response", "error", err)
	}
}

// requestIDFrom returns the id set by middleware.RequestID, generating one
// when the middleware is not installed.
func requestIDFrom(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return generateRequestID()
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}
