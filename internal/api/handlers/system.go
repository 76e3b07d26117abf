package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/guestgate/guestgate/internal/api/common"
	"github.com/guestgate/guestgate/internal/auth"
	"github.com/guestgate/guestgate/internal/policy"
)

// SystemHandler serves login, health and sweep control endpoints.
type SystemHandler struct {
	deps *common.Dependencies
}

func NewSystemHandler(deps *common.Dependencies) *SystemHandler {
	return &SystemHandler{deps: deps}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates the operator and issues a JWT.
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	input, ok := common.DecodeJSON[loginRequest](w, r)
	if !ok {
		return
	}
	if !common.ValidateStruct(w, r, h.deps.Validate, input) {
		return
	}

	resp, err := h.deps.Auth.Login(input.Username, input.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			common.SendError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid username or password", nil)
			return
		}
		common.SendError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed", nil)
		return
	}

	common.SendJSON(w, http.StatusOK, resp)
}

// Health is the liveness probe.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	common.SendJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready is the readiness probe: it checks the sweep loop when one is
// configured.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ready"}
	if h.deps.Sweeper != nil {
		status["sweeper_running"] = h.deps.Sweeper.IsRunning()
	}
	common.SendJSON(w, http.StatusOK, status)
}

// RunSweep triggers an immediate suspension sweep.
func (h *SystemHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Policy.SweepAll(r.Context())
	if err != nil {
		if errors.Is(err, policy.ErrSweepInProgress) {
			common.SendError(w, r, http.StatusConflict, "SWEEP_IN_PROGRESS", err.Error(), nil)
			return
		}
		common.SendError(w, r, http.StatusInternalServerError, "SWEEP_FAILED", "Suspension sweep failed", err.Error())
		return
	}
	common.SendJSON(w, http.StatusOK, result)
}

// SweepStatus reports the outcome of the most recent sweep.
func (h *SystemHandler) SweepStatus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sweeper == nil {
		common.SendError(w, r, http.StatusNotFound, "NOT_FOUND", "Periodic sweep is not enabled", nil)
		return
	}
	result, ok := h.deps.Sweeper.LastResult()
	if !ok {
		common.SendJSON(w, http.StatusOK, map[string]any{"completed": false})
		return
	}
	common.SendJSON(w, http.StatusOK, map[string]any{"completed": true, "result": result})
}
