package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, ErrorResponse{Error: msg})
}

type NonceResponse struct {
	Nonce string `json:"nonce"`
}

type LoginRequest struct {
	Message   string `json:"message" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type CreateEventRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	LockAddress string `json:"lockAddress"`
	ChainID     uint64 `json:"chainId"`
	StartsAt    string `json:"startsAt" binding:"required"`
	Location    string `json:"location"`
	Platform    string `json:"platform"`
	Gated       bool   `json:"gated"`
}

type UpdateEventRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	LockAddress *string `json:"lockAddress"`
	StartsAt    *string `json:"startsAt"`
	Location    *string `json:"location"`
	Platform    *string `json:"platform"`
	Gated       *bool   `json:"gated"`
}

type ActionRequest struct {
	EventID string `json:"eventId" binding:"required"`
}

type RevokeRequest struct {
	EventID string `json:"eventId" binding:"required"`
	Schema  string `json:"schema" binding:"required"`
}

type VoteRequest struct {
	VoteType string `json:"voteType" binding:"required"`
}

type AllowListAddressRequest struct {
	Address string `json:"address" binding:"required"`
}

func writeJSON(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}
