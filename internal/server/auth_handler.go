package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/p2e-inferno/teerex-sub003/internal/auth"
)

type authHandler struct {
	auth *auth.Service
}

func newAuthHandler(a *auth.Service) *authHandler {
	return &authHandler{auth: a}
}

// Nonce godoc
// @Summary Issue SIWE nonce
// @Description Returns a short-lived nonce for SIWE authentication.
// @Tags Auth
// @Produce json
// @Success 200 {object} server.NonceResponse
// @Failure 500 {object} server.ErrorResponse
// @Router /auth/nonce [get]
func (h *authHandler) Nonce(c *gin.Context) {
	nonce, err := h.auth.IssueNonce()
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to issue nonce")
		return
	}
	writeJSON(c, NonceResponse{Nonce: nonce})
}

// Login godoc
// @Summary Wallet login
// @Description Authenticates a wallet via SIWE and returns a JWT access token.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body server.LoginRequest true "Login request"
// @Success 200 {object} server.LoginResponse
// @Failure 400 {object} server.ErrorResponse
// @Failure 401 {object} server.ErrorResponse
// @Router /auth/login [post]
func (h *authHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	token, err := h.auth.LoginWithSIWE(c.Request.Context(), req.Message, req.Signature)
	if err != nil {
		writeError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(c, LoginResponse{Token: token})
}

// Me godoc
// @Summary Get current session
// @Description Returns the authenticated wallet address and organizer flag.
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/v1/me [get]
func (h *authHandler) Me(c *gin.Context) {
	writeJSON(c, gin.H{
		"address":   auth.CallerAddress(c),
		"organizer": c.GetBool(auth.ContextOrganizer),
	})
}
