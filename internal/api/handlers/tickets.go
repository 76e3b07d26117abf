package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/guestgate/guestgate/internal/api/common"
	"github.com/guestgate/guestgate/internal/models"
	"github.com/guestgate/guestgate/internal/store"
)

// TicketHandler exposes the enforcement audit trail.
type TicketHandler struct {
	deps *common.Dependencies
}

func NewTicketHandler(deps *common.Dependencies) *TicketHandler {
	return &TicketHandler{deps: deps}
}

func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TicketFilter{
		MAC:    q.Get("mac"),
		Status: models.TicketStatus(q.Get("status")),
	}
	if v := q.Get("network_device_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			common.SendError(w, r, http.StatusBadRequest, "INVALID_ID", "Invalid network_device_id", nil)
			return
		}
		filter.NetworkDeviceID = &id
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			common.SendError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "limit must be a positive integer", nil)
			return
		}
		filter.Limit = limit
	}

	tickets, err := h.deps.Store.ListTickets(r.Context(), filter)
	if err != nil {
		common.HandleOperationError(w, r, err, "Ticket")
		return
	}
	common.SendListResponse(w, tickets, len(tickets))
}

func (h *TicketHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	ticket, err := h.deps.Store.GetTicketByNumber(r.Context(), number)
	if err != nil {
		common.HandleOperationError(w, r, err, "Ticket")
		return
	}
	common.SendJSON(w, http.StatusOK, ticket)
}

// Activity returns the activity log for one MAC.
func (h *TicketHandler) Activity(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			common.SendError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "limit must be a positive integer", nil)
			return
		}
		limit = n
	}
	entries, err := h.deps.Store.ListActivity(r.Context(), mac, limit)
	if err != nil {
		common.HandleOperationError(w, r, err, "Activity")
		return
	}
	common.SendListResponse(w, entries, len(entries))
}
