package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/core/service"
)

const maxRequestBytes = 1 << 20

// Services groups the core services exposed over the transports.
type Services struct {
	Items           *service.ItemService
	Ledger          *service.LedgerService
	Availability    *service.AvailabilityService
	Critical        *service.CriticalReportService
	Recommendations *service.RecommendationService
}

type HTTPHandler struct {
	svc    Services
	logger *zap.Logger
}

func NewHTTPHandler(svc Services, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, logger: logger.Named("http")}
}

// Routes returns the API mux wrapped with CORS and access logging.
func (h *HTTPHandler) Routes(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /api/items", h.CreateItem)
	mux.HandleFunc("GET /api/items", h.ListItems)
	mux.HandleFunc("GET /api/items/{id}", h.GetItem)
	mux.HandleFunc("PATCH /api/items/{id}", h.UpdateItem)
	mux.HandleFunc("DELETE /api/items/{id}", h.DeleteItem)

	mux.HandleFunc("POST /api/entries", h.RegisterEntry)
	mux.HandleFunc("POST /api/reservations", h.ReserveStock)
	mux.HandleFunc("POST /api/reservations/consume", h.ConsumeStock)
	mux.HandleFunc("POST /api/reservations/cancel", h.CancelReservation)
	mux.HandleFunc("POST /api/reservations/return", h.RegisterReturn)
	mux.HandleFunc("GET /api/reservations/{serviceOrderItemId}", h.GetReservation)

	mux.HandleFunc("GET /api/availability/parts/{id}", h.GetPartAvailability)
	mux.HandleFunc("GET /api/availability/vehicles/{id}", h.GetVehicleAvailability)
	mux.HandleFunc("GET /api/availability/clients/{id}", h.GetClientAvailability)

	mux.HandleFunc("GET /api/reports/critical", h.GetCriticalPartsReport)
	mux.HandleFunc("GET /api/recommendations", h.GetRecommendations)
	mux.HandleFunc("GET /api/recommendations/pipelines", h.ListPipelines)
	mux.HandleFunc("GET /api/movements", h.ListMovements)
	mux.HandleFunc("GET /api/reconcile/{partId}", h.Reconcile)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(h.logRequests(mux))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.svc.Items.CreateItem(r.Context(), req.toService())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newItemResponse(*item))
}

func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Items.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(*item))
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ItemFilter{
		PartID:         q.Get("partId"),
		Location:       q.Get("location"),
		ActiveOnly:     q.Get("activeOnly") == "true",
		IncludeDeleted: q.Get("includeDeleted") == "true",
	}
	items, err := h.svc.Items.ListItems(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponses(items))
}

func (h *HTTPHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.svc.Items.UpdateItem(r.Context(), r.PathValue("id"), req.toDomain())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(*item))
}

func (h *HTTPHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	soft, err := h.svc.Items.DeleteItem(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteItemResponse{ItemID: id, SoftDeleted: soft})
}

func (h *HTTPHandler) RegisterEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeMovement(w, r, http.StatusCreated)(h.svc.Ledger.RegisterEntry(r.Context(), req.toService()))
}

func (h *HTTPHandler) ReserveStock(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeMovement(w, r, http.StatusCreated)(h.svc.Ledger.ReserveStock(r.Context(), req.toService()))
}

func (h *HTTPHandler) ConsumeStock(w http.ResponseWriter, r *http.Request) {
	var req ReservationChangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeMovement(w, r, http.StatusOK)(h.svc.Ledger.ConsumeStock(r.Context(), req.toService()))
}

func (h *HTTPHandler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	var req ReservationChangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeMovement(w, r, http.StatusOK)(h.svc.Ledger.CancelReservation(r.Context(), req.toService()))
}

func (h *HTTPHandler) RegisterReturn(w http.ResponseWriter, r *http.Request) {
	var req ReservationChangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeMovement(w, r, http.StatusOK)(h.svc.Ledger.RegisterReturn(r.Context(), req.toService()))
}

func (h *HTTPHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Ledger.GetReservation(r.Context(), r.PathValue("serviceOrderItemId"), r.URL.Query().Get("partId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationResponse(*res))
}

func (h *HTTPHandler) GetPartAvailability(w http.ResponseWriter, r *http.Request) {
	av, err := h.svc.Availability.GetPartAvailability(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAvailabilityResponse(*av))
}

func (h *HTTPHandler) GetVehicleAvailability(w http.ResponseWriter, r *http.Request) {
	agg, err := h.svc.Availability.GetVehicleAvailability(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAggregateAvailabilityResponse(*agg))
}

func (h *HTTPHandler) GetClientAvailability(w http.ResponseWriter, r *http.Request) {
	agg, err := h.svc.Availability.GetClientAvailability(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAggregateAvailabilityResponse(*agg))
}

func (h *HTTPHandler) GetCriticalPartsReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Critical.GetCriticalPartsReport(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCriticalReportResponse(*report))
}

func (h *HTTPHandler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	recs, err := h.svc.Recommendations.GetRecommendations(r.Context(), domain.RecommendationQuery{
		VehicleID:      q.Get("vehicleId"),
		ServiceOrderID: q.Get("serviceOrderId"),
		Limit:          limit,
		PipelineID:     q.Get("pipeline"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRecommendationResponses(recs))
}

func (h *HTTPHandler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newPipelineResponses(h.svc.Recommendations.ListPipelines()))
}

func (h *HTTPHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	filter, err := movementFilterFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	movements, err := h.svc.Ledger.ListMovements(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMovementResponses(movements))
}

func (h *HTTPHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Ledger.Reconcile(r.Context(), r.PathValue("partId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReconciliationResponse(*report))
}

func movementFilterFromQuery(r *http.Request) (domain.MovementFilter, error) {
	q := r.URL.Query()
	filter := domain.MovementFilter{
		PartID:              q.Get("partId"),
		ItemID:              q.Get("itemId"),
		ServiceOrderItemIDs: listParam(q.Get("serviceOrderItemId")),
		VehicleIDs:          listParam(q.Get("vehicleId")),
	}
	for _, t := range listParam(q.Get("type")) {
		filter.Types = append(filter.Types, domain.MovementType(strings.ToUpper(t)))
	}

	var err error
	if filter.Since, err = timeParam(q.Get("since"), "since"); err != nil {
		return filter, err
	}
	if filter.Until, err = timeParam(q.Get("until"), "until"); err != nil {
		return filter, err
	}
	if filter.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return filter, err
	}
	return filter, nil
}

func listParam(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.NewValidationError("query", "%s must be an integer", name)
	}
	return n, nil
}

func timeParam(v, name string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, domain.NewValidationError("query", "%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid request body"})
		return false
	}
	return true
}

// writeMovement adapts a ledger call's return values to a response.
func (h *HTTPHandler) writeMovement(w http.ResponseWriter, r *http.Request, status int) func(*service.MovementResult, error) {
	return func(res *service.MovementResult, err error) {
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, status, newMovementResultResponse(res))
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := newErrorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *HTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
