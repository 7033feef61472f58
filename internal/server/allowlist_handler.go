package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/p2e-inferno/teerex-sub003/internal/allowlist"
	"github.com/p2e-inferno/teerex-sub003/internal/auth"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

type allowListHandler struct {
	svc *allowlist.Service
}

func newAllowListHandler(svc *allowlist.Service) *allowListHandler {
	return &allowListHandler{svc: svc}
}

func allowListStatus(err error) int {
	switch {
	case errors.Is(err, allowlist.ErrEventNotFound),
		errors.Is(err, allowlist.ErrRequestNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, allowlist.ErrAlreadyDecided),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Request godoc
// @Summary Request entry to a gated event
// @Tags AllowList
// @Security BearerAuth
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} store.AllowListRequest
// @Failure 409 {object} server.ErrorResponse
// @Router /api/v1/events/{id}/allowlist/requests [post]
func (h *allowListHandler) Request(c *gin.Context) {
	req, err := h.svc.Request(c.Request.Context(), c.Param("id"), auth.CallerAddress(c))
	if err != nil {
		writeError(c, allowListStatus(err), err.Error())
		return
	}
	writeJSON(c, req)
}

// ListRequests godoc
// @Summary List allow-list requests for an event
// @Tags AllowList
// @Security BearerAuth
// @Produce json
// @Param id path string true "Event ID"
// @Param status query string false "pending|approved|rejected"
// @Success 200 {array} store.AllowListRequest
// @Router /api/v1/events/{id}/allowlist/requests [get]
func (h *allowListHandler) ListRequests(c *gin.Context) {
	items, err := h.svc.Requests(c.Request.Context(), c.Param("id"), c.Query("status"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to list requests")
		return
	}
	writeJSON(c, items)
}

// Approve godoc
// @Summary Approve an allow-list request
// @Tags AllowList
// @Security BearerAuth
// @Produce json
// @Param requestId path int true "Request ID"
// @Success 200 {object} map[string]any
// @Failure 409 {object} server.ErrorResponse
// @Router /api/v1/allowlist/requests/{requestId}/approve [post]
func (h *allowListHandler) Approve(c *gin.Context) {
	h.decide(c, h.svc.Approve)
}

// Reject godoc
// @Summary Reject an allow-list request
// @Tags AllowList
// @Security BearerAuth
// @Produce json
// @Param requestId path int true "Request ID"
// @Success 200 {object} map[string]any
// @Failure 409 {object} server.ErrorResponse
// @Router /api/v1/allowlist/requests/{requestId}/reject [post]
func (h *allowListHandler) Reject(c *gin.Context) {
	h.decide(c, h.svc.Reject)
}

func (h *allowListHandler) decide(c *gin.Context, fn func(ctx context.Context, id uint) error) {
	id, valid := requestIDParam(c)
	if !valid {
		return
	}
	if err := fn(c.Request.Context(), id); err != nil {
		writeError(c, allowListStatus(err), err.Error())
		return
	}
	writeJSON(c, gin.H{"ok": true})
}

// Entries godoc
// @Summary List allow-list entries
// @Tags AllowList
// @Security BearerAuth
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {array} store.AllowListEntry
// @Router /api/v1/events/{id}/allowlist [get]
func (h *allowListHandler) Entries(c *gin.Context) {
	items, err := h.svc.Entries(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to list entries")
		return
	}
	writeJSON(c, items)
}

// Add godoc
// @Summary Add an address to an event's allow list
// @Tags AllowList
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param request body server.AllowListAddressRequest true "Address"
// @Success 200 {object} map[string]any
// @Router /api/v1/events/{id}/allowlist [post]
func (h *allowListHandler) Add(c *gin.Context) {
	var req AllowListAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Add(c.Request.Context(), c.Param("id"), req.Address); err != nil {
		writeError(c, allowListStatus(err), err.Error())
		return
	}
	writeJSON(c, gin.H{"ok": true})
}

// Remove godoc
// @Summary Remove an address from an event's allow list
// @Tags AllowList
// @Security BearerAuth
// @Produce json
// @Param id path string true "Event ID"
// @Param address path string true "Address"
// @Success 200 {object} map[string]any
// @Failure 404 {object} server.ErrorResponse
// @Router /api/v1/events/{id}/allowlist/{address} [delete]
func (h *allowListHandler) Remove(c *gin.Context) {
	if err := h.svc.Remove(c.Request.Context(), c.Param("id"), c.Param("address")); err != nil {
		writeError(c, allowListStatus(err), err.Error())
		return
	}
	writeJSON(c, gin.H{"ok": true})
}

func requestIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("requestId"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid request id")
		return 0, false
	}
	return uint(id), true
}
