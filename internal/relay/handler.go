package relay

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/p2e-inferno/teerex-sub003/internal/apperr"
	"github.com/p2e-inferno/teerex-sub003/internal/eas"
	"github.com/p2e-inferno/teerex-sub003/internal/reputation"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

type Handler struct {
	svc      *Service
	resolver *eas.SchemaResolver
	ledger   *reputation.Ledger
	repo     *store.Repository
	logger   *log.Logger
}

func NewHandler(svc *Service, resolver *eas.SchemaResolver, ledger *reputation.Ledger, repo *store.Repository, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{svc: svc, resolver: resolver, ledger: ledger, repo: repo, logger: logger}
}

func writeResult(c *gin.Context, res *Result, err error) {
	if err != nil {
		c.JSON(http.StatusOK, Result{OK: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// AttestByDelegation godoc
// @Summary Relay a delegated attestation
// @Description Verifies the delegated signature and submits the attestation with the funded service wallet.
// @Tags Relay
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body relay.AttestByDelegationRequest true "Delegated attestation"
// @Success 200 {object} relay.Result
// @Failure 400 {object} relay.Result
// @Router /api/v1/relay/attest-by-delegation [post]
func (h *Handler) AttestByDelegation(c *gin.Context) {
	var req AttestByDelegationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Result{OK: false, Error: err.Error()})
		return
	}
	res, err := h.svc.AttestByDelegation(c.Request.Context(), req)
	if err != nil {
		h.logger.Printf("attest-by-delegation failed (event=%s): %v", req.EventID, err)
		writeResult(c, nil, err)
		return
	}
	if res != nil && res.OK && eas.IsValidUID(res.UID) {
		h.applyAttendanceReputation(c, req.SchemaUID, req.Recipient)
	}
	writeResult(c, res, nil)
}

// RevokeByDelegation godoc
// @Summary Relay a delegated revocation
// @Tags Relay
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body relay.RevokeByDelegationRequest true "Delegated revocation"
// @Success 200 {object} relay.Result
// @Failure 400 {object} relay.Result
// @Router /api/v1/relay/revoke-by-delegation [post]
func (h *Handler) RevokeByDelegation(c *gin.Context) {
	var req RevokeByDelegationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Result{OK: false, Error: err.Error()})
		return
	}
	res, err := h.svc.RevokeByDelegation(c.Request.Context(), req)
	if err != nil {
		h.logger.Printf("revoke-by-delegation failed (uid=%s): %v", req.UID, err)
	}
	writeResult(c, res, err)
}

// ServiceAddress godoc
// @Summary Get the relay service wallet address
// @Tags Relay
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/v1/relay/service-address [get]
func (h *Handler) ServiceAddress(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "address": h.svc.ServiceAddress().Hex()})
}

type removeServiceManagerRequest struct {
	EventID     string `json:"eventId"`
	LockAddress string `json:"lockAddress"`
}

// RemoveServiceManager godoc
// @Summary Renounce the service wallet's lock-manager role
// @Description Resolves the event's lock (or uses the given address) and renounces the manager role on it.
// @Tags Relay
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body relay.removeServiceManagerRequest true "Target lock"
// @Success 200 {object} relay.Result
// @Failure 400 {object} relay.Result
// @Router /api/v1/relay/remove-service-manager [post]
func (h *Handler) RemoveServiceManager(c *gin.Context) {
	var req removeServiceManagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Result{OK: false, Error: err.Error()})
		return
	}
	lockAddress := req.LockAddress
	if lockAddress == "" && req.EventID != "" {
		ev, err := h.repo.GetEvent(c.Request.Context(), req.EventID)
		if err != nil {
			writeResult(c, nil, apperr.Wrap(apperr.Relay, "event lookup failed", err))
			return
		}
		if ev == nil || ev.LockAddress == "" {
			writeResult(c, nil, apperr.New(apperr.Configuration, "event has no lock configured"))
			return
		}
		lockAddress = ev.LockAddress
	}
	res, err := h.svc.RemoveServiceManager(c.Request.Context(), lockAddress)
	if err != nil {
		h.logger.Printf("remove-service-manager failed (lock=%s): %v", lockAddress, err)
	}
	writeResult(c, res, err)
}

// applyAttendanceReputation fires the non-blocking +5 side effect when
// the relayed schema is the attendance schema.
func (h *Handler) applyAttendanceReputation(c *gin.Context, schemaUID, recipient string) {
	schema, err := h.resolver.Resolve(c.Request.Context(), schemaUID)
	if err != nil || schema == nil {
		return
	}
	if schema.Name == store.SchemaAttendance {
		h.ledger.ApplyAsync(recipient, reputation.EventAttendance)
	}
}
