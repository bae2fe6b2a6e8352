package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rl1809/warehouse-inventory/internal/core/domain"
	"github.com/rl1809/warehouse-inventory/internal/core/service"
)

type HTTPHandler struct {
	inventory *service.InventoryService
	auth      *service.AuthService
	logger    *zap.Logger
}

type LoginHTTPRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

type CreateHTTPRequest struct {
	RequestID          string  `json:"request_id"`
	LabelID            string  `json:"label_id"`
	ProductDescription string  `json:"product_description"`
	StorageLocation    *string `json:"storage_location"`
	QuantityOnPallet   *int    `json:"quantity_on_pallet"`
}

// QuantityHTTPRequest carries exactly one of an absolute count or an
// increase to a counted pallet.
type QuantityHTTPRequest struct {
	NewQuantity      *int `json:"new_quantity"`
	IncreaseQuantity *int `json:"increase_quantity"`
}

type LocationHTTPRequest struct {
	NewLocation string `json:"new_location"`
}

type DeleteHTTPRequest struct {
	Confirmation bool `json:"confirmation"`
}

type ErrorHTTPResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(inventory *service.InventoryService, auth *service.AuthService, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{inventory: inventory, auth: auth, logger: logger}
}

// NewRouter mounts the handler's routes together with health and metrics
// endpoints. gatherer may be nil to leave /metrics out.
func NewRouter(h *HTTPHandler, gatherer prometheus.Gatherer) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(h.logger))

	router.Get("/health", h.HealthCheck)
	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	h.RegisterRoutes(router)
	return router
}

func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/auth/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Post("/api/v1/auth/logout", h.logout)
		r.Route("/api/v1/inventory", func(r chi.Router) {
			r.Post("/", h.createRecord)                 // POST   /api/v1/inventory
			r.Get("/", h.findRecords)                   // GET    /api/v1/inventory?label_id=ITEM1
			r.Get("/{id}", h.getRecord)                 // GET    /api/v1/inventory/{id}
			r.Get("/{id}/history", h.history)           // GET    /api/v1/inventory/{id}/history
			r.Patch("/{id}/quantity", h.updateQuantity) // PATCH  /api/v1/inventory/{id}/quantity
			r.Patch("/{id}/location", h.updateLocation) // PATCH  /api/v1/inventory/{id}/location
			r.Delete("/{id}", h.softDelete)             // DELETE /api/v1/inventory/{id}
		})
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginHTTPRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := h.auth.Login(r.Context(), req.Name, req.Secret)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *HTTPHandler) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r.Header.Get("Authorization"))
	if err := h.auth.Logout(r.Context(), token); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) createRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateHTTPRequest
	if !decodeBody(w, r, &req) {
		return
	}
	create := service.CreateRequest{
		LabelID:            req.LabelID,
		ProductDescription: req.ProductDescription,
		StorageLocation:    req.StorageLocation,
		QuantityOnPallet:   req.QuantityOnPallet,
	}
	record, err := h.inventory.CreateOnce(r.Context(), req.RequestID, create, principalFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *HTTPHandler) findRecords(w http.ResponseWriter, r *http.Request) {
	criteria, err := criteriaFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	records, err := h.inventory.Find(r.Context(), criteria)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *HTTPHandler) getRecord(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	record, err := h.inventory.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *HTTPHandler) history(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.inventory.History(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *HTTPHandler) updateQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req QuantityHTTPRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var record *domain.InventoryRecord
	by := principalFrom(r.Context())
	switch {
	case req.NewQuantity != nil && req.IncreaseQuantity != nil:
		err = &domain.ValidationError{Field: "quantity_on_pallet", Reason: "accepts either new_quantity or increase_quantity"}
	case req.NewQuantity != nil:
		record, err = h.inventory.UpdateQuantity(r.Context(), id, *req.NewQuantity, by)
	case req.IncreaseQuantity != nil:
		record, err = h.inventory.AdjustQuantity(r.Context(), id, *req.IncreaseQuantity, by)
	default:
		err = &domain.ValidationError{Field: "quantity_on_pallet", Reason: "is required"}
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *HTTPHandler) updateLocation(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req LocationHTTPRequest
	if !decodeBody(w, r, &req) {
		return
	}
	record, err := h.inventory.UpdateLocation(r.Context(), id, req.NewLocation, principalFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *HTTPHandler) softDelete(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req DeleteHTTPRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Confirmation {
		h.writeError(w, r, &domain.ValidationError{Field: "confirmation", Reason: "must be true"})
		return
	}
	record, err := h.inventory.SoftDelete(r.Context(), id, principalFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *HTTPHandler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			h.writeError(w, r, service.ErrInvalidToken)
			return
		}
		principal, err := h.auth.Resolve(r.Context(), token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		message = "internal error"
	}
	writeJSON(w, status, ErrorHTTPResponse{Error: message})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func recordID(r *http.Request) (int64, error) {
	return parseRecordID(chi.URLParam(r, "id"))
}

func parseRecordID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: "record_id", Reason: "must be a positive integer"}
	}
	return id, nil
}

func criteriaFromQuery(r *http.Request) (domain.Criteria, error) {
	var c domain.Criteria
	q := r.URL.Query()

	if raw := q.Get("record_id"); raw != "" {
		id, err := parseRecordID(raw)
		if err != nil {
			return c, err
		}
		c.RecordID = &id
	}
	if raw := q.Get("quantity_on_pallet"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return c, &domain.ValidationError{Field: "quantity_on_pallet", Reason: "must be an integer"}
		}
		quantity := int(n)
		c.QuantityOnPallet = &quantity
	}
	if q.Has("label_id") {
		v := q.Get("label_id")
		c.LabelID = &v
	}
	if q.Has("storage_location") {
		v := q.Get("storage_location")
		c.StorageLocation = &v
	}
	if q.Has("product_description") {
		v := q.Get("product_description")
		c.ProductDescription = &v
	}
	if raw := q.Get("scheduled_for_deletion"); raw != "" {
		only, err := strconv.ParseBool(raw)
		if err != nil {
			return c, &domain.ValidationError{Field: "scheduled_for_deletion", Reason: "must be a boolean"}
		}
		c.OnlyScheduledForDeletion = only
	}
	return c, nil
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
