package handlers

import (
	"net/http"

	"github.com/guestgate/guestgate/internal/api/common"
	"github.com/guestgate/guestgate/internal/models"
	"github.com/guestgate/guestgate/internal/netops"
)

// NetworkDeviceHandler manages equipment records and runs operations
// against the equipment through the enforcement service.
type NetworkDeviceHandler struct {
	deps *common.Dependencies
}

func NewNetworkDeviceHandler(deps *common.Dependencies) *NetworkDeviceHandler {
	return &NetworkDeviceHandler{deps: deps}
}

type networkDeviceRequest struct {
	Name       string `json:"name" validate:"required"`
	Brand      string `json:"brand" validate:"required"`
	DeviceType string `json:"device_type" validate:"required,oneof=router switch access_point controller"`
	Host       string `json:"host" validate:"required"`
	Port       int    `json:"port" validate:"required,min=1,max=65535"`
	UseTLS     bool   `json:"use_tls"`
	VerifyTLS  bool   `json:"verify_tls"`

	AuthType  string `json:"auth_type" validate:"required,oneof=basic token login community"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Token     string `json:"token"`
	Community string `json:"community"`

	TimeoutSeconds int `json:"timeout_seconds" validate:"min=0,max=300"`

	SupportsMACBlocking      bool `json:"supports_mac_blocking"`
	SupportsBandwidthControl bool `json:"supports_bandwidth_control"`
	SupportsClientListing    bool `json:"supports_client_listing"`
}

func (h *NetworkDeviceHandler) fromRequest(w http.ResponseWriter, r *http.Request, input networkDeviceRequest, nd *models.NetworkDevice) bool {
	encrypted, err := h.deps.Auth.EncryptCredentials(netops.Credentials{
		Username:  input.Username,
		Password:  input.Password,
		Token:     input.Token,
		Community: input.Community,
	})
	if err != nil {
		common.SendError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to encrypt credentials", nil)
		return false
	}

	nd.Name = input.Name
	nd.Brand = models.DeviceBrand(input.Brand)
	nd.DeviceType = input.DeviceType
	nd.Host = input.Host
	nd.Port = input.Port
	nd.UseTLS = input.UseTLS
	nd.VerifyTLS = input.VerifyTLS
	nd.AuthType = models.AuthType(input.AuthType)
	nd.Credentials = encrypted
	nd.TimeoutSeconds = input.TimeoutSeconds
	nd.SupportsMACBlocking = input.SupportsMACBlocking
	nd.SupportsBandwidthControl = input.SupportsBandwidthControl
	nd.SupportsClientListing = input.SupportsClientListing
	return true
}

func (h *NetworkDeviceHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := common.DecodeJSON[networkDeviceRequest](w, r)
	if !ok {
		return
	}
	if !common.ValidateStruct(w, r, h.deps.Validate, input) {
		return
	}

	var nd models.NetworkDevice
	if !h.fromRequest(w, r, input, &nd) {
		return
	}
	if err := h.deps.Store.CreateNetworkDevice(r.Context(), &nd); err != nil {
		common.HandleOperationError(w, r, err, "Network device")
		return
	}
	common.SendJSON(w, http.StatusCreated, nd)
}

func (h *NetworkDeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deps.Store.ListNetworkDevices(r.Context())
	if err != nil {
		common.HandleOperationError(w, r, err, "Network device")
		return
	}
	common.SendListResponse(w, devices, len(devices))
}

func (h *NetworkDeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	nd, err := h.deps.Store.GetNetworkDevice(r.Context(), id)
	if err != nil {
		common.HandleOperationError(w, r, err, "Network device")
		return
	}
	common.SendJSON(w, http.StatusOK, nd)
}

func (h *NetworkDeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	input, ok := common.DecodeJSON[networkDeviceRequest](w, r)
	if !ok {
		return
	}
	if !common.ValidateStruct(w, r, h.deps.Validate, input) {
		return
	}

	nd, err := h.deps.Store.GetNetworkDevice(r.Context(), id)
	if err != nil {
		common.HandleOperationError(w, r, err, "Network device")
		return
	}
	if !h.fromRequest(w, r, input, nd) {
		return
	}
	if err := h.deps.Store.UpdateNetworkDevice(r.Context(), nd); err != nil {
		common.HandleOperationError(w, r, err, "Network device")
		return
	}
	common.SendJSON(w, http.StatusOK, nd)
}

func (h *NetworkDeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.deps.Store.DeleteNetworkDevice(r.Context(), id); err != nil {
		common.HandleOperationError(w, r, err, "Network device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Test probes connectivity and reports the updated health record.
func (h *NetworkDeviceHandler) Test(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	result, err := h.deps.Enforcer.TestConnection(r.Context(), id)
	if err != nil && result.Message == "" {
		common.HandleOperationError(w, r, err, "Network device")
		return
	}
	common.SendJSON(w, http.StatusOK, result)
}

func (h *NetworkDeviceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	stats, err := h.deps.Enforcer.GetDeviceStats(r.Context(), id)
	if err != nil {
		common.HandleOperationError(w, r, err, "Network device")
		return
	}
	common.SendJSON(w, http.StatusOK, stats)
}

func (h *NetworkDeviceHandler) Clients(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	clients, err := h.deps.Enforcer.GetConnectedDevices(r.Context(), id)
	if err != nil {
		common.HandleOperationError(w, r, err, "Network device")
		return
	}
	common.SendListResponse(w, clients, len(clients))
}

func (h *NetworkDeviceHandler) BlockedMACs(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	macs, err := h.deps.Enforcer.GetBlockedMACs(r.Context(), id)
	if err != nil {
		common.HandleOperationError(w, r, err, "Network device")
		return
	}
	common.SendListResponse(w, macs, len(macs))
}

// EnforceSuspensions blocks every suspended end-device on this
// equipment.
func (h *NetworkDeviceHandler) EnforceSuspensions(w http.ResponseWriter, r *http.Request) {
	id, ok := common.ParseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	report, err := h.deps.Enforcer.EnforceSuspensions(r.Context(), id)
	if err != nil {
		common.HandleOperationError(w, r, err, "Network device")
		return
	}
	common.SendJSON(w, http.StatusOK, report)
}
