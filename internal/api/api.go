// Package api provides primitives to interact with the pixelsort HTTP API.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// Defines values for HealthResponseStatus.
const (
	Healthy HealthResponseStatus = "healthy"
)

// Defines values for OutputFormat.
const (
	Bmp  OutputFormat = "bmp"
	Gif  OutputFormat = "gif"
	Jpeg OutputFormat = "jpeg"
	Png  OutputFormat = "png"
	Rgbz OutputFormat = "rgbz"
	Tiff OutputFormat = "tiff"
)

// Defines values for SortMode.
const (
	Average    SortMode = "average"
	Blue       SortMode = "blue"
	Green      SortMode = "green"
	Hue        SortMode = "hue"
	Lightness  SortMode = "lightness"
	Red        SortMode = "red"
	Saturation SortMode = "saturation"
)

// Defines values for ValidationErrorResponseError.
const (
	VALIDATIONERROR ValidationErrorResponseError = "VALIDATION_ERROR"
)

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	// Details Additional error details
	Details *map[string]interface{} `json:"details,omitempty"`

	// Error Error code
	Error string `json:"error"`

	// Message Human-readable error message
	Message string `json:"message"`

	// RequestId Unique request identifier for tracking
	RequestId *string `json:"request_id,omitempty"`
}

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status    HealthResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`

	// Uptime Server uptime in seconds
	Uptime  *int    `json:"uptime,omitempty"`
	Version *string `json:"version,omitempty"`

	// Workers Number of sorting workers per request
	Workers *int `json:"workers,omitempty"`
}

// HealthResponseStatus defines model for HealthResponse.Status.
type HealthResponseStatus string

// ModesResponse defines model for ModesResponse.
type ModesResponse struct {
	Default SortMode   `json:"default"`
	Modes   []SortMode `json:"modes"`
}

// OutputFormat Encoding of the returned image
type OutputFormat string

// SortMode Ranking metric used to order pixels within a span
type SortMode string

// ValidationErrorResponse defines model for ValidationErrorResponse.
type ValidationErrorResponse struct {
	Error            ValidationErrorResponseError `json:"error"`
	Message          string                       `json:"message"`
	RequestId        *string                      `json:"request_id,omitempty"`
	ValidationErrors []struct {
		Code    *string `json:"code,omitempty"`
		Field   string  `json:"field"`
		Message string  `json:"message"`
	} `json:"validation_errors"`
}

// ValidationErrorResponseError defines model for ValidationErrorResponse.Error.
type ValidationErrorResponseError string

// SortImageParams defines parameters for SortImage.
type SortImageParams struct {
	// Min Lower luminance bound of the threshold band (0-255)
	Min *int `form:"min,omitempty" json:"min,omitempty"`

	// Max Upper luminance bound of the threshold band (0-255)
	Max *int `form:"max,omitempty" json:"max,omitempty"`

	// Mode Ranking metric
	Mode *SortMode `form:"mode,omitempty" json:"mode,omitempty"`

	// Vertical Sort columns instead of rows
	Vertical *bool `form:"vertical,omitempty" json:"vertical,omitempty"`

	// Invert Sort descending
	Invert *bool `form:"invert,omitempty" json:"invert,omitempty"`

	// Passes Number of passes, alternating orientation
	Passes *int `form:"passes,omitempty" json:"passes,omitempty"`

	// Format Output encoding; defaults to the input encoding
	Format *OutputFormat `form:"format,omitempty" json:"format,omitempty"`

	// Quality JPEG quality (1-100)
	Quality *int `form:"quality,omitempty" json:"quality,omitempty"`
}

// PreviewThresholdsParams defines parameters for PreviewThresholds.
type PreviewThresholdsParams struct {
	Min    *int          `form:"min,omitempty" json:"min,omitempty"`
	Max    *int          `form:"max,omitempty" json:"max,omitempty"`
	Format *OutputFormat `form:"format,omitempty" json:"format,omitempty"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Health check
	// (GET /health)
	GetHealth(w http.ResponseWriter, r *http.Request)
	// List sort modes
	// (GET /modes)
	ListSortModes(w http.ResponseWriter, r *http.Request)
	// Sort pixel spans of an image
	// (POST /sort)
	SortImage(w http.ResponseWriter, r *http.Request, params SortImageParams)
	// Render the threshold band as a black/white image
	// (POST /threshold)
	PreviewThresholds(w http.ResponseWriter, r *http.Request, params PreviewThresholdsParams)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

type MiddlewareFunc func(http.Handler) http.Handler

// GetHealth operation middleware
func (siw *ServerInterfaceWrapper) GetHealth(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetHealth(w, r)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// ListSortModes operation middleware
func (siw *ServerInterfaceWrapper) ListSortModes(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ListSortModes(w, r)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// SortImage operation middleware
func (siw *ServerInterfaceWrapper) SortImage(w http.ResponseWriter, r *http.Request) {
	var err error

	// Parameter object where we will unmarshal all parameters from the context
	var params SortImageParams

	// ------------- Optional query parameter "min" -------------

	err = runtime.BindQueryParameter("form", true, false, "min", r.URL.Query(), &params.Min)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "min", Err: err})
		return
	}

	// ------------- Optional query parameter "max" -------------

	err = runtime.BindQueryParameter("form", true, false, "max", r.URL.Query(), &params.Max)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "max", Err: err})
		return
	}

	// ------------- Optional query parameter "mode" -------------

	err = runtime.BindQueryParameter("form", true, false, "mode", r.URL.Query(), &params.Mode)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "mode", Err: err})
		return
	}

	// ------------- Optional query parameter "vertical" -------------

	err = runtime.BindQueryParameter("form", true, false, "vertical", r.URL.Query(), &params.Vertical)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "vertical", Err: err})
		return
	}

	// ------------- Optional query parameter "invert" -------------

	err = runtime.BindQueryParameter("form", true, false, "invert", r.URL.Query(), &params.Invert)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "invert", Err: err})
		return
	}

	// ------------- Optional query parameter "passes" -------------

	err = runtime.BindQueryParameter("form", true, false, "passes", r.URL.Query(), &params.Passes)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "passes", Err: err})
		return
	}

	// ------------- Optional query parameter "format" -------------

	err = runtime.BindQueryParameter("form", true, false, "format", r.URL.Query(), &params.Format)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "format", Err: err})
		return
	}

	// ------------- Optional query parameter "quality" -------------

	err = runtime.BindQueryParameter("form", true, false, "quality", r.URL.Query(), &params.Quality)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "quality", Err: err})
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.SortImage(w, r, params)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// PreviewThresholds operation middleware
func (siw *ServerInterfaceWrapper) PreviewThresholds(w http.ResponseWriter, r *http.Request) {
	var err error

	// Parameter object where we will unmarshal all parameters from the context
	var params PreviewThresholdsParams

	// ------------- Optional query parameter "min" -------------

	err = runtime.BindQueryParameter("form", true, false, "min", r.URL.Query(), &params.Min)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "min", Err: err})
		return
	}

	// ------------- Optional query parameter "max" -------------

	err = runtime.BindQueryParameter("form", true, false, "max", r.URL.Query(), &params.Max)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "max", Err: err})
		return
	}

	// ------------- Optional query parameter "format" -------------

	err = runtime.BindQueryParameter("form", true, false, "format", r.URL.Query(), &params.Format)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "format", Err: err})
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.PreviewThresholds(w, r, params)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// InvalidParamFormatError is passed to ErrorHandlerFunc when a query
// parameter cannot be bound.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// Handler creates http.Handler with routing matching OpenAPI spec.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerWithOptions creates http.Handler with additional options
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health", wrapper.GetHealth)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/modes", wrapper.ListSortModes)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/sort", wrapper.SortImage)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/threshold", wrapper.PreviewThresholds)
	})

	return r
}
