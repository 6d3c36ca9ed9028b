package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/imoklv/imok/internal/http/response"
	"github.com/imoklv/imok/internal/observability"
	"github.com/imoklv/imok/internal/repository"
	"github.com/imoklv/imok/internal/service"
)

type DeviceHandler struct {
	devices *service.DeviceService
	logger  *slog.Logger
}

func NewDeviceHandler(devices *service.DeviceService, logger *slog.Logger) *DeviceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceHandler{devices: devices, logger: logger}
}

type registerRequest struct {
	Email string `json:"email"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type notificationsRequest struct {
	Enabled bool `json:"enabled"`
}

// Register handles POST /generate.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.devices.Register(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEmail):
			response.Error(w, http.StatusBadRequest, "Invalid email address")
		case errors.Is(err, service.ErrMailDelivery):
			h.logger.Error("verification email failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "Failed to generate device")
		default:
			h.logger.Error("device registration failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "Server error")
		}
		return
	}
	observability.Audit(r, "device.registered", "device", observability.RedactHash(res.DeviceID))
	response.JSON(w, http.StatusOK, map[string]any{
		"deviceId":          res.DeviceID,
		"needsVerification": res.NeedsVerification,
	})
}

// CreateTrusted handles POST /device.
func (h *DeviceHandler) CreateTrusted(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hash, err := h.devices.CreateTrusted(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEmail):
			response.Error(w, http.StatusBadRequest, "Invalid email address")
		case errors.Is(err, service.ErrMailDelivery):
			h.logger.Error("verification email failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "Failed to generate device")
		default:
			h.logger.Error("trusted device creation failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "Server error")
		}
		return
	}
	observability.Audit(r, "device.created", "device", observability.RedactHash(hash))
	response.JSON(w, http.StatusOK, map[string]string{"hash": hash})
}

// Ping handles GET /u/{hash}, the endpoint devices hit from cron.
func (h *DeviceHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	out, err := h.devices.Ping(r.Context(), hash, clientIP(r))
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			response.Error(w, http.StatusNotFound, "Device not found")
			return
		}
		h.logger.Error("ping failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "Server error")
		return
	}
	if !out.Accepted {
		response.RateLimited(w, "Rate limit exceeded", out.WaitSeconds)
		return
	}
	response.Success(w)
}

// Status handles GET /status/{hash}.
func (h *DeviceHandler) Status(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	view, err := h.devices.Status(r.Context(), hash)
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			response.Error(w, http.StatusNotFound, "Device not found")
			return
		}
		h.logger.Error("status lookup failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "Server error")
		return
	}
	response.JSON(w, http.StatusOK, view)
}

// SetNotifications handles POST /notifications/{hash}. Unknown hashes
// still answer success; the dashboard toggles optimistically and treats
// any non-2xx as failure-and-revert.
func (h *DeviceHandler) SetNotifications(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	var req notificationsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.devices.SetNotifications(r.Context(), hash, req.Enabled); err != nil {
		h.logger.Error("notification toggle failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "Server error")
		return
	}
	observability.Audit(r, "device.notifications_set",
		"device", observability.RedactHash(hash),
		"enabled", req.Enabled,
	)
	response.JSON(w, http.StatusOK, map[string]any{"success": true, "enabled": req.Enabled})
}

// Rename handles POST /name/{hash}.
func (h *DeviceHandler) Rename(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	var req renameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.devices.Rename(r.Context(), hash, req.Name); err != nil {
		switch {
		case errors.Is(err, repository.ErrDeviceNotFound):
			response.Error(w, http.StatusNotFound, "Device not found")
		case errors.Is(err, service.ErrEmailNotValidated):
			response.Error(w, http.StatusForbidden, "Email not verified")
		default:
			h.logger.Error("rename failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "Server error")
		}
		return
	}
	observability.Audit(r, "device.renamed", "device", observability.RedactHash(hash))
	response.Success(w)
}

// Delete handles DELETE /device/{hash}.
func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if err := h.devices.Delete(r.Context(), hash); err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			response.Error(w, http.StatusNotFound, "Device not found")
			return
		}
		h.logger.Error("delete failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "Server error")
		return
	}
	observability.Audit(r, "device.deleted", "device", observability.RedactHash(hash))
	response.Success(w)
}

// Verify handles GET /verify/{token} and its legacy /validate alias.
// Both outcomes redirect to the dashboard, which reads the flags from
// the query string.
func (h *DeviceHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	hash, err := h.devices.Verify(r.Context(), token)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidToken) {
			h.logger.Error("verification failed", "error", err)
		}
		http.Redirect(w, r, "/?error=invalid_or_expired", http.StatusFound)
		return
	}
	observability.Audit(r, "device.verified", "device", observability.RedactHash(hash))
	target := "/?" + url.Values{
		"device":   {hash},
		"verified": {"1"},
		"status":   {"verified"},
	}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
