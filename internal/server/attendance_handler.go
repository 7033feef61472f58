package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/p2e-inferno/teerex-sub003/internal/apperr"
	"github.com/p2e-inferno/teerex-sub003/internal/attendance"
	"github.com/p2e-inferno/teerex-sub003/internal/auth"
)

type attendanceHandler struct {
	svc *attendance.Service
}

func newAttendanceHandler(svc *attendance.Service) *attendanceHandler {
	return &attendanceHandler{svc: svc}
}

func attendanceStatus(err error) int {
	switch {
	case errors.Is(err, attendance.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrEventStarted),
		errors.Is(err, attendance.ErrEventNotEnded),
		errors.Is(err, attendance.ErrAlreadyActive),
		errors.Is(err, attendance.ErrNothingToRevoke):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrNotAllowListed):
		return http.StatusForbidden
	case apperr.IsKind(err, apperr.Configuration):
		return http.StatusServiceUnavailable
	case apperr.IsKind(err, apperr.Reconciliation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// State godoc
// @Summary Attendance state for the caller
// @Description Reconciled going/attended state for one event, including revoke gating.
// @Tags Attendance
// @Security BearerAuth
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} attendance.State
// @Failure 404 {object} server.ErrorResponse
// @Router /api/v1/events/{id}/attendance [get]
func (h *attendanceHandler) State(c *gin.Context) {
	st, err := h.svc.State(c.Request.Context(), c.Param("id"), auth.CallerAddress(c), true)
	if err != nil {
		writeError(c, attendanceStatus(err), err.Error())
		return
	}
	writeJSON(c, st)
}

// DeclareGoing godoc
// @Summary Declare intent to attend
// @Tags Attendance
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body server.ActionRequest true "Event"
// @Success 200 {object} relay.Result
// @Failure 409 {object} server.ErrorResponse
// @Router /api/v1/attendance/going [post]
func (h *attendanceHandler) DeclareGoing(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.DeclareGoing(c.Request.Context(), req.EventID, auth.CallerAddress(c))
	if err != nil {
		writeError(c, attendanceStatus(err), err.Error())
		return
	}
	writeJSON(c, res)
}

// ConfirmAttendance godoc
// @Summary Confirm attendance after the event
// @Tags Attendance
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body server.ActionRequest true "Event"
// @Success 200 {object} relay.Result
// @Failure 409 {object} server.ErrorResponse
// @Router /api/v1/attendance/confirm [post]
func (h *attendanceHandler) ConfirmAttendance(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.ConfirmAttendance(c.Request.Context(), req.EventID, auth.CallerAddress(c))
	if err != nil {
		writeError(c, attendanceStatus(err), err.Error())
		return
	}
	writeJSON(c, res)
}

// Revoke godoc
// @Summary Revoke an active attestation
// @Description Subject to schema-level, instance-level and permission gates.
// @Tags Attendance
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body server.RevokeRequest true "Slot to revoke"
// @Success 200 {object} relay.Result
// @Failure 409 {object} server.ErrorResponse
// @Router /api/v1/attendance/revoke [post]
func (h *attendanceHandler) Revoke(c *gin.Context) {
	var req RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.Revoke(c.Request.Context(), req.EventID, auth.CallerAddress(c), req.Schema, true)
	if err != nil {
		writeError(c, attendanceStatus(err), err.Error())
		return
	}
	writeJSON(c, res)
}
