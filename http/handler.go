package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/sagarc03/mediareceiver"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// StatusSource reports the upload server state.
type StatusSource interface {
	Status() mediareceiver.Status
}

// Service is the ledger side of the upload service.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (mediareceiver.UploadedFile, error)
	List(ctx context.Context, query mediareceiver.ListQuery) (mediareceiver.ListResult, error)
	Summary(ctx context.Context) ([]mediareceiver.CategorySummary, error)
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled" yaml:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers" yaml:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

type HandlerConfig struct {
	// URLs are the addresses visitors can open, reported by /status.
	URLs []string
	CORS CORSConfig
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	mediareceiver.Status
	URLs []string `json:"urls"`
}

// Handler serves the status API.
type Handler struct {
	config  HandlerConfig
	status  StatusSource
	service Service
}

// NewHandler creates a new Handler. service may be nil, in which case the
// ledger routes report the ledger as disabled.
func NewHandler(config *HandlerConfig, status StatusSource, service Service) *Handler {
	return &Handler{
		config:  *config,
		status:  status,
		service: service,
	}
}

// Router returns an http.Handler with all routes configured.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(RecoverMiddleware)
	r.Use(LoggingMiddleware)

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.NotFound(writeNotFound)
	r.MethodNotAllowed(writeMethodNotAllowed)

	r.Get("/status", h.handleStatus)
	r.Route("/uploads", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/summary", h.handleSummary)
		r.Get("/{id}", h.handleGet)
	})

	return r
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	urls := h.config.URLs
	if urls == nil {
		urls = []string{}
	}

	_ = WriteJSON(w, http.StatusOK, StatusResponse{
		Status: h.status.Status(),
		URLs:   urls,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		HandleError(w, mediareceiver.ErrLedgerDisabled)
		return
	}

	var category mediareceiver.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		parsed, err := mediareceiver.ParseCategory(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_input", "Invalid category")
			return
		}
		category = parsed
	}

	limit := defaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = max(1, min(maxListLimit, parsed))
		}
	}

	query := mediareceiver.ListQuery{
		Category: category,
		Limit:    limit,
		Cursor:   r.URL.Query().Get("cursor"),
	}

	result, err := h.service.List(r.Context(), query)
	if err != nil {
		HandleError(w, err)
		return
	}

	if result.Items == nil {
		result.Items = []mediareceiver.UploadedFile{}
	}

	_ = WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		HandleError(w, mediareceiver.ErrLedgerDisabled)
		return
	}

	summary, err := h.service.Summary(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}

	if summary == nil {
		summary = []mediareceiver.CategorySummary{}
	}

	_ = WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		HandleError(w, mediareceiver.ErrLedgerDisabled)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_input", "Invalid upload id")
		return
	}

	file, err := h.service.Get(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, file)
}
