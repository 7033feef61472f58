package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/p2e-inferno/teerex-sub003/internal/reputation"
)

type reputationHandler struct {
	ledger *reputation.Ledger
}

func newReputationHandler(ledger *reputation.Ledger) *reputationHandler {
	return &reputationHandler{ledger: ledger}
}

// Score godoc
// @Summary Reputation score for an address
// @Description Returns the current score snapshot; unknown addresses get the initial score.
// @Tags Reputation
// @Produce json
// @Param address path string true "Wallet address"
// @Success 200 {object} reputation.Snapshot
// @Router /api/v1/reputation/{address} [get]
func (h *reputationHandler) Score(c *gin.Context) {
	snap, err := h.ledger.Current(c.Request.Context(), c.Param("address"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to load reputation")
		return
	}
	writeJSON(c, snap)
}
