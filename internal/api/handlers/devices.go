package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/guestgate/guestgate/internal/api/common"
	"github.com/guestgate/guestgate/internal/models"
	"github.com/guestgate/guestgate/internal/netops"
	"github.com/guestgate/guestgate/internal/tickets"
)

// DeviceHandler manages guest/staff end-devices and their enforcement
// actions.
type DeviceHandler struct {
	deps *common.Dependencies
}

func NewDeviceHandler(deps *common.Dependencies) *DeviceHandler {
	return &DeviceHandler{deps: deps}
}

type deviceRequest struct {
	MAC                string     `json:"mac" validate:"required"`
	Name               string     `json:"name"`
	GuestID            *uuid.UUID `json:"guest_id"`
	StaffID            *uuid.UUID `json:"staff_id"`
	DailyQuotaMB       *int       `json:"daily_quota_mb" validate:"omitempty,min=1"`
	BandwidthLimitMbps *float64   `json:"bandwidth_limit_mbps" validate:"omitempty,gt=0"`
}

func (h *DeviceHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := common.DecodeJSON[deviceRequest](w, r)
	if !ok {
		return
	}
	if !common.ValidateStruct(w, r, h.deps.Validate, input) {
		return
	}
	if input.GuestID != nil && input.StaffID != nil {
		common.SendError(w, r, http.StatusBadRequest, "VALIDATION_FAILED",
			"A device belongs to a guest or a staff member, not both", nil)
		return
	}

	mac, err := netops.NormalizeMAC(input.MAC)
	if err != nil {
		common.HandleOperationError(w, r, err, "Device")
		return
	}

	dev := models.Device{
		MAC:                mac,
		Name:               input.Name,
		GuestID:            input.GuestID,
		StaffID:            input.StaffID,
		DailyQuotaMB:       input.DailyQuotaMB,
		BandwidthLimitMbps: input.BandwidthLimitMbps,
	}
	if err := h.deps.Store.CreateDevice(r.Context(), &dev); err != nil {
		common.HandleOperationError(w, r, err, "Device")
		return
	}
	common.SendJSON(w, http.StatusCreated, dev)
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deps.Store.ListDevices(r.Context())
	if err != nil {
		common.HandleOperationError(w, r, err, "Device")
		return
	}
	common.SendListResponse(w, devices, len(devices))
}

func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	dev, err := h.deps.Store.GetDevice(r.Context(), id)
	if err != nil {
		common.HandleOperationError(w, r, err, "Device")
		return
	}
	common.SendJSON(w, http.StatusOK, dev)
}

func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.deps.Store.DeleteDevice(r.Context(), id); err != nil {
		common.HandleOperationError(w, r, err, "Device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type suspendRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// Suspend sets the manual suspension flag. This does not touch the
// network until suspensions are enforced.
func (h *DeviceHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	input, ok := common.DecodeJSON[suspendRequest](w, r)
	if !ok {
		return
	}
	if !common.ValidateStruct(w, r, h.deps.Validate, input) {
		return
	}
	if err := h.deps.Enforcer.SuspendDevice(r.Context(), id, input.Reason); err != nil {
		common.HandleOperationError(w, r, err, "Device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resume clears the manual suspension flag.
func (h *DeviceHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.deps.Enforcer.ResumeDevice(r.Context(), id); err != nil {
		common.HandleOperationError(w, r, err, "Device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SuspendGuestDevices flags every device registered to one guest.
func (h *DeviceHandler) SuspendGuestDevices(w http.ResponseWriter, r *http.Request) {
	guestID, ok := common.ParseUUIDParam(w, r, "guestID")
	if !ok {
		return
	}
	input, ok := common.DecodeJSON[suspendRequest](w, r)
	if !ok {
		return
	}
	if !common.ValidateStruct(w, r, h.deps.Validate, input) {
		return
	}
	count, err := h.deps.Enforcer.SuspendGuestDevices(r.Context(), guestID, input.Reason)
	if err != nil {
		common.HandleOperationError(w, r, err, "Guest")
		return
	}
	common.SendJSON(w, http.StatusOK, map[string]int{"suspended": count})
}

type enforcementRequest struct {
	NetworkDeviceID uuid.UUID `json:"network_device_id" validate:"required"`
	MAC             string    `json:"mac" validate:"required"`
	Reason          string    `json:"reason"`
	LimitMbps       float64   `json:"limit_mbps"`

	Priority        string `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	DurationMinutes *int   `json:"duration_minutes" validate:"omitempty,min=1"`
}

func (req enforcementRequest) options() tickets.Options {
	return tickets.Options{
		Priority:        models.TicketPriority(req.Priority),
		DurationMinutes: req.DurationMinutes,
		IsTemporary:     req.DurationMinutes != nil,
	}
}

func (h *DeviceHandler) decodeEnforcement(w http.ResponseWriter, r *http.Request) (enforcementRequest, bool) {
	input, ok := common.DecodeJSON[enforcementRequest](w, r)
	if !ok {
		return input, false
	}
	if !common.ValidateStruct(w, r, h.deps.Validate, input) {
		return input, false
	}
	return input, true
}

// Block blocks a MAC on the target equipment. The ticket is returned
// whether the adapter call succeeded or failed.
func (h *DeviceHandler) Block(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeEnforcement(w, r)
	if !ok {
		return
	}
	ticket, err := h.deps.Enforcer.BlockMAC(r.Context(), input.NetworkDeviceID, input.MAC, input.Reason, input.options())
	h.sendTicket(w, r, ticket, err)
}

func (h *DeviceHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeEnforcement(w, r)
	if !ok {
		return
	}
	ticket, err := h.deps.Enforcer.UnblockMAC(r.Context(), input.NetworkDeviceID, input.MAC, input.Reason, input.options())
	h.sendTicket(w, r, ticket, err)
}

func (h *DeviceHandler) SetBandwidthLimit(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeEnforcement(w, r)
	if !ok {
		return
	}
	ticket, err := h.deps.Enforcer.SetBandwidthLimit(r.Context(), input.NetworkDeviceID, input.MAC, input.LimitMbps, input.Reason, input.options())
	h.sendTicket(w, r, ticket, err)
}

func (h *DeviceHandler) RemoveBandwidthLimit(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeEnforcement(w, r)
	if !ok {
		return
	}
	ticket, err := h.deps.Enforcer.RemoveBandwidthLimit(r.Context(), input.NetworkDeviceID, input.MAC, input.Reason, input.options())
	h.sendTicket(w, r, ticket, err)
}

// sendTicket returns the failed ticket alongside the error status so
// the caller can follow up; a missing ticket means the request never
// reached the equipment.
func (h *DeviceHandler) sendTicket(w http.ResponseWriter, r *http.Request, ticket *models.UsageTicket, err error) {
	if err != nil && ticket == nil {
		common.HandleOperationError(w, r, err, "Network device")
		return
	}
	if err != nil {
		common.SendJSON(w, http.StatusBadGateway, map[string]any{
			"ticket": ticket,
			"error":  err.Error(),
		})
		return
	}
	common.SendJSON(w, http.StatusOK, map[string]any{"ticket": ticket})
}
