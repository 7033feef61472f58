package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/p2e-inferno/teerex-sub003/internal/auth"
	"github.com/p2e-inferno/teerex-sub003/internal/challenge"
)

type challengeHandler struct {
	svc *challenge.Service
}

func newChallengeHandler(svc *challenge.Service) *challengeHandler {
	return &challengeHandler{svc: svc}
}

func challengeStatus(err error) int {
	switch {
	case errors.Is(err, challenge.ErrUnknownAttestation):
		return http.StatusNotFound
	case errors.Is(err, challenge.ErrEmptyReason),
		errors.Is(err, challenge.ErrSelfChallenge),
		errors.Is(err, challenge.ErrUnknownVoteType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Submit godoc
// @Summary Dispute an attestation
// @Description Files a challenge with a reason and optional evidence. Costs the challenger a small reputation penalty.
// @Tags Challenges
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body challenge.SubmitRequest true "Challenge"
// @Success 200 {object} store.Challenge
// @Failure 400 {object} server.ErrorResponse
// @Router /api/v1/challenges [post]
func (h *challengeHandler) Submit(c *gin.Context) {
	var req challenge.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	// The challenger is always the authenticated caller.
	req.Challenger = auth.CallerAddress(c)
	ch, err := h.svc.Submit(c.Request.Context(), req)
	if err != nil {
		writeError(c, challengeStatus(err), err.Error())
		return
	}
	writeJSON(c, ch)
}

// Vote godoc
// @Summary Vote on a challenged attestation
// @Description One vote per (attestation, voter); repeats are ignored.
// @Tags Challenges
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param uid path string true "Attestation UID"
// @Param request body server.VoteRequest true "Vote"
// @Success 200 {object} map[string]any
// @Failure 400 {object} server.ErrorResponse
// @Router /api/v1/attestations/{uid}/votes [post]
func (h *challengeHandler) Vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	inserted, err := h.svc.CastVote(c.Request.Context(), c.Param("uid"), auth.CallerAddress(c), req.VoteType)
	if err != nil {
		writeError(c, challengeStatus(err), err.Error())
		return
	}
	writeJSON(c, gin.H{"recorded": inserted})
}

// Tally godoc
// @Summary Vote tally for an attestation
// @Tags Challenges
// @Produce json
// @Param uid path string true "Attestation UID"
// @Success 200 {object} challenge.Tally
// @Router /api/v1/attestations/{uid}/votes [get]
func (h *challengeHandler) Tally(c *gin.Context) {
	tally, err := h.svc.TallyVotes(c.Request.Context(), c.Param("uid"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to tally votes")
		return
	}
	writeJSON(c, tally)
}

// List godoc
// @Summary List challenges for an attestation
// @Tags Challenges
// @Produce json
// @Param uid path string true "Attestation UID"
// @Success 200 {array} store.Challenge
// @Router /api/v1/attestations/{uid}/challenges [get]
func (h *challengeHandler) List(c *gin.Context) {
	items, err := h.svc.ListByAttestation(c.Request.Context(), c.Param("uid"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to list challenges")
		return
	}
	writeJSON(c, items)
}
