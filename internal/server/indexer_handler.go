package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/p2e-inferno/teerex-sub003/internal/config"
	indexersvc "github.com/p2e-inferno/teerex-sub003/internal/indexer/service"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

type indexerHandler struct {
	reader *indexersvc.Reader
	cfg    config.ChainConfig
}

func newIndexerHandler(reader *indexersvc.Reader, cfg config.ChainConfig) *indexerHandler {
	return &indexerHandler{reader: reader, cfg: cfg}
}

// Status godoc
// @Summary Attestation mirror status
// @Tags Attestations
// @Produce json
// @Success 200 {object} service.Status
// @Router /api/v1/attestations/status [get]
func (h *indexerHandler) Status(c *gin.Context) {
	st, err := h.reader.Status(c.Request.Context(), h.cfg.ChainID, h.cfg.EASContract)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to load indexer status")
		return
	}
	st.SchemaRegistry = store.NormalizeAddress(h.cfg.SchemaRegistry)
	writeJSON(c, st)
}

// ListByEvent godoc
// @Summary Attestations for an event
// @Tags Attestations
// @Produce json
// @Param id path string true "Event ID"
// @Param schemaUid query string false "Schema UID filter"
// @Success 200 {array} service.AttestationItem
// @Router /api/v1/events/{id}/attestations [get]
func (h *indexerHandler) ListByEvent(c *gin.Context) {
	items, err := h.reader.ListByEvent(c.Request.Context(), c.Param("id"), c.Query("schemaUid"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to list attestations")
		return
	}
	writeJSON(c, items)
}

// Get godoc
// @Summary One attestation by UID
// @Tags Attestations
// @Produce json
// @Param uid path string true "Attestation UID"
// @Success 200 {object} service.AttestationItem
// @Failure 404 {object} server.ErrorResponse
// @Router /api/v1/attestations/{uid} [get]
func (h *indexerHandler) Get(c *gin.Context) {
	item, err := h.reader.Get(c.Request.Context(), c.Param("uid"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to load attestation")
		return
	}
	if item == nil {
		writeError(c, http.StatusNotFound, "attestation not found")
		return
	}
	writeJSON(c, item)
}
