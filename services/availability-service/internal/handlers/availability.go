package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slotwise/slotwise/services/availability-service/internal/cache"
	"github.com/slotwise/slotwise/services/availability-service/internal/engine"
)

// Catalog supplies the service and staff records the engine consumes, already
// scoped to the correct tenant by the persistence layer.
type Catalog interface {
	Service(ctx context.Context, id string) (*engine.Service, error)
	Staff(ctx context.Context) ([]*engine.Staff, error)
}

// StaticCatalog is the in-memory Catalog used in no-database mode and in tests.
type StaticCatalog struct {
	Services  map[string]*engine.Service
	StaffPool []*engine.Staff
}

func (c *StaticCatalog) Service(_ context.Context, id string) (*engine.Service, error) {
	svc, ok := c.Services[id]
	if !ok {
		return nil, errors.New("service not found")
	}
	return svc, nil
}

func (c *StaticCatalog) Staff(_ context.Context) ([]*engine.Staff, error) {
	return c.StaffPool, nil
}

type AvailabilityHandler struct {
	engine  *engine.Engine
	catalog Catalog
	slots   *cache.SlotCache
	logger  *slog.Logger
}

// NewAvailabilityHandler wires the engine behind the HTTP surface. slotCache
// may be nil; responses are then always computed.
func NewAvailabilityHandler(eng *engine.Engine, catalog Catalog, slotCache *cache.SlotCache, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{engine: eng, catalog: catalog, slots: slotCache, logger: logger}
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	StaffID   string `json:"staff_id"`
	ServiceID string `json:"service_id"`
	Available bool   `json:"available"`
	Price     string `json:"price,omitempty"`
}

func slotItems(slots []engine.TimeSlot) []slotItem {
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
			StaffID:   s.StaffID,
			ServiceID: s.ServiceID,
			Available: s.Available,
			Price:     s.Price,
		})
	}
	return items
}

type conflictItem struct {
	Type        string `json:"type"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Description string `json:"description"`
}

func conflictItems(conflicts []engine.Conflict) []conflictItem {
	items := make([]conflictItem, 0, len(conflicts))
	for _, c := range conflicts {
		items = append(items, conflictItem{
			Type:        string(c.Type),
			StartTime:   c.Start.UTC().Format(time.RFC3339),
			EndTime:     c.End.UTC().Format(time.RFC3339),
			Description: c.Description,
		})
	}
	return items
}

// Slots handles GET /api/v1/slots.
// Query: service_id (required), date or start_date+end_date, staff_id,
// include_unavailable, slot_minutes.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	if serviceID == "" {
		http.Error(w, "service_id required", http.StatusBadRequest)
		return
	}

	opts := engine.Options{}
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr != "" {
		day, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
		if err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		opts.Date = day
	} else if startStr := strings.TrimSpace(r.URL.Query().Get("start_date")); startStr != "" {
		endStr := strings.TrimSpace(r.URL.Query().Get("end_date"))
		start, err := time.ParseInLocation("2006-01-02", startStr, time.UTC)
		if err != nil {
			http.Error(w, "invalid start_date", http.StatusBadRequest)
			return
		}
		end, err := time.ParseInLocation("2006-01-02", endStr, time.UTC)
		if err != nil || end.Before(start) {
			http.Error(w, "invalid end_date", http.StatusBadRequest)
			return
		}
		opts.Range = &engine.DateRange{Start: start, End: end}
	}

	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	if staffID != "" {
		opts.StaffIDs = []string{staffID}
	}
	opts.IncludeUnavailable = r.URL.Query().Get("include_unavailable") == "true"
	if v := strings.TrimSpace(r.URL.Query().Get("slot_minutes")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 8*60 {
			http.Error(w, "invalid slot_minutes", http.StatusBadRequest)
			return
		}
		opts.SlotMinutes = n
	}

	ctx := r.Context()
	svc, err := h.catalog.Service(ctx, serviceID)
	if err != nil {
		http.Error(w, "service not found", http.StatusNotFound)
		return
	}

	// Single staff/day defaults are cacheable; anything else is computed.
	cacheable := h.slots != nil && staffID != "" && dateStr != "" &&
		!opts.IncludeUnavailable && opts.SlotMinutes == 0
	if cacheable {
		cached, hit, err := h.slots.Get(ctx, serviceID, staffID, dateStr)
		if err != nil {
			h.logger.Warn("slot cache read failed", "err", err)
		} else if hit {
			writeJSON(w, http.StatusOK, slotItems(cached))
			return
		}
	}

	pool, err := h.catalog.Staff(ctx)
	if err != nil {
		http.Error(w, "failed to load staff", http.StatusInternalServerError)
		return
	}

	slots, err := h.engine.CalculateAvailability(ctx, svc, pool, opts)
	if err != nil {
		httpStatusFromEngineErr(w, err)
		return
	}
	if cacheable {
		if err := h.slots.Set(ctx, serviceID, staffID, dateStr, slots); err != nil {
			h.logger.Warn("slot cache write failed", "err", err)
		}
	}
	writeJSON(w, http.StatusOK, slotItems(slots))
}

// NextSlot handles GET /api/v1/slots/next.
func (h *AvailabilityHandler) NextSlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	if serviceID == "" {
		http.Error(w, "service_id required", http.StatusBadRequest)
		return
	}
	from := time.Now().UTC()
	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		day, err := time.ParseInLocation("2006-01-02", v, time.UTC)
		if err != nil {
			http.Error(w, "invalid from date", http.StatusBadRequest)
			return
		}
		from = day
	}

	ctx := r.Context()
	svc, err := h.catalog.Service(ctx, serviceID)
	if err != nil {
		http.Error(w, "service not found", http.StatusNotFound)
		return
	}
	pool, err := h.catalog.Staff(ctx)
	if err != nil {
		http.Error(w, "failed to load staff", http.StatusInternalServerError)
		return
	}

	slot, err := h.engine.FindNextAvailableSlot(ctx, svc, pool, from)
	if err != nil {
		httpStatusFromEngineErr(w, err)
		return
	}
	if slot == nil {
		http.Error(w, "no slot available within the booking horizon", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, slotItems([]engine.TimeSlot{*slot})[0])
}

type assignmentRequest struct {
	ServiceID     string `json:"service_id"`
	RequestedTime string `json:"requested_time"`
}

type assignmentResponse struct {
	StaffID string   `json:"staff_id"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// Assign handles POST /api/v1/assignments.
func (h *AvailabilityHandler) Assign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.ServiceID == "" {
		http.Error(w, "service_id required", http.StatusBadRequest)
		return
	}
	requested, err := time.Parse(time.RFC3339, req.RequestedTime)
	if err != nil {
		http.Error(w, "invalid requested_time", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	svc, err := h.catalog.Service(ctx, req.ServiceID)
	if err != nil {
		http.Error(w, "service not found", http.StatusNotFound)
		return
	}
	pool, err := h.catalog.Staff(ctx)
	if err != nil {
		http.Error(w, "failed to load staff", http.StatusInternalServerError)
		return
	}

	assignment, err := h.engine.OptimalAssignment(ctx, svc, pool, requested)
	if err != nil {
		httpStatusFromEngineErr(w, err)
		return
	}
	if assignment.Staff == nil {
		http.Error(w, "no staff available for the requested time", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, assignmentResponse{
		StaffID: assignment.Staff.ID,
		Score:   assignment.Score,
		Reasons: assignment.Reasons,
	})
}

type bookRequest struct {
	ServiceID string `json:"service_id"`
	StaffID   string `json:"staff_id"`
	StartTime string `json:"start_time"`
}

type bookResponse struct {
	StaffID   string `json:"staff_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Book handles POST /api/v1/book. A conflicting request returns 409 with the
// full conflict list.
func (h *AvailabilityHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.ServiceID == "" || req.StaffID == "" {
		http.Error(w, "service_id and staff_id required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	svc, err := h.catalog.Service(ctx, req.ServiceID)
	if err != nil {
		http.Error(w, "service not found", http.StatusNotFound)
		return
	}
	staff, err := h.staffByID(ctx, req.StaffID)
	if err != nil {
		http.Error(w, "staff not found", http.StatusNotFound)
		return
	}

	conflicts, err := h.engine.Book(ctx, svc, staff, start)
	if err != nil {
		httpStatusFromEngineErr(w, err)
		return
	}
	if len(conflicts) > 0 {
		writeJSON(w, http.StatusConflict, map[string]any{"conflicts": conflictItems(conflicts)})
		return
	}
	h.invalidateSlots(ctx, staff.ID)

	end := start.Add(time.Duration(svc.TotalDurationMinutes()) * time.Minute)
	writeJSON(w, http.StatusCreated, bookResponse{
		StaffID:   staff.ID,
		StartTime: start.UTC().Format(time.RFC3339),
		EndTime:   end.UTC().Format(time.RFC3339),
	})
}

type removeRequest struct {
	StaffID   string `json:"staff_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Remove handles POST /api/v1/appointments/remove. A miss is 404, not an
// error: it usually means the caller's view of the ledger is stale.
func (h *AvailabilityHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req removeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.StaffID == "" {
		http.Error(w, "staff_id required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}

	removed, err := h.engine.RemoveAppointment(r.Context(), req.StaffID, start, end)
	if err != nil {
		http.Error(w, "failed to remove appointment", http.StatusInternalServerError)
		return
	}
	if !removed {
		http.Error(w, "no matching appointment", http.StatusNotFound)
		return
	}
	h.invalidateSlots(r.Context(), req.StaffID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AvailabilityHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/slots", h.Slots)
	mux.HandleFunc("/api/v1/slots/next", h.NextSlot)
	mux.HandleFunc("/api/v1/assignments", h.Assign)
	mux.HandleFunc("/api/v1/book", h.Book)
	mux.HandleFunc("/api/v1/appointments/remove", h.Remove)
}

func (h *AvailabilityHandler) staffByID(ctx context.Context, id string) (*engine.Staff, error) {
	pool, err := h.catalog.Staff(ctx)
	if err != nil {
		return nil, err
	}
	for _, st := range pool {
		if st.ID == id {
			return st, nil
		}
	}
	return nil, errors.New("staff not found")
}

func (h *AvailabilityHandler) invalidateSlots(ctx context.Context, staffID string) {
	if h.slots == nil {
		return
	}
	if err := h.slots.Invalidate(ctx, staffID); err != nil {
		h.logger.Warn("slot cache invalidation failed", "staff_id", staffID, "err", err)
	}
}

func httpStatusFromEngineErr(w http.ResponseWriter, err error) {
	var vErr *engine.ValidationError
	var cErr *engine.ClockError
	switch {
	case errors.As(err, &vErr), errors.As(err, &cErr):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "availability computation failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
