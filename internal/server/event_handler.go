package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

type eventHandler struct {
	repo *store.Repository
}

func newEventHandler(repo *store.Repository) *eventHandler {
	return &eventHandler{repo: repo}
}

// CreateEvent godoc
// @Summary Create an event
// @Tags Events
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body server.CreateEventRequest true "Event"
// @Success 200 {object} store.Event
// @Failure 400 {object} server.ErrorResponse
// @Router /api/v1/events [post]
func (h *eventHandler) CreateEvent(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		writeError(c, http.StatusBadRequest, "startsAt must be RFC3339")
		return
	}
	ev := &store.Event{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		LockAddress: store.NormalizeAddress(req.LockAddress),
		ChainID:     req.ChainID,
		StartsAt:    startsAt,
		Location:    req.Location,
		Platform:    req.Platform,
		Gated:       req.Gated,
	}
	if err := h.repo.CreateEvent(c.Request.Context(), ev); err != nil {
		writeError(c, http.StatusInternalServerError, "failed to create event")
		return
	}
	writeJSON(c, ev)
}

// UpdateEvent godoc
// @Summary Update an event
// @Tags Events
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param request body server.UpdateEventRequest true "Fields to change"
// @Success 200 {object} store.Event
// @Failure 404 {object} server.ErrorResponse
// @Router /api/v1/events/{id} [patch]
func (h *eventHandler) UpdateEvent(c *gin.Context) {
	var req UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := h.repo.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to load event")
		return
	}
	if ev == nil {
		writeError(c, http.StatusNotFound, "event not found")
		return
	}
	if req.Title != nil {
		ev.Title = *req.Title
	}
	if req.Description != nil {
		ev.Description = *req.Description
	}
	if req.LockAddress != nil {
		ev.LockAddress = store.NormalizeAddress(*req.LockAddress)
	}
	if req.StartsAt != nil {
		startsAt, err := time.Parse(time.RFC3339, *req.StartsAt)
		if err != nil {
			writeError(c, http.StatusBadRequest, "startsAt must be RFC3339")
			return
		}
		ev.StartsAt = startsAt
	}
	if req.Location != nil {
		ev.Location = *req.Location
	}
	if req.Platform != nil {
		ev.Platform = *req.Platform
	}
	if req.Gated != nil {
		ev.Gated = *req.Gated
	}
	if err := h.repo.SaveEvent(c.Request.Context(), ev); err != nil {
		writeError(c, http.StatusInternalServerError, "failed to update event")
		return
	}
	writeJSON(c, ev)
}

// ListEvents godoc
// @Summary List events
// @Tags Events
// @Produce json
// @Success 200 {array} store.Event
// @Router /api/v1/events [get]
func (h *eventHandler) ListEvents(c *gin.Context) {
	events, err := h.repo.ListEvents(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(c, events)
}

// GetEvent godoc
// @Summary Get one event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} store.Event
// @Failure 404 {object} server.ErrorResponse
// @Router /api/v1/events/{id} [get]
func (h *eventHandler) GetEvent(c *gin.Context) {
	ev, err := h.repo.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to load event")
		return
	}
	if ev == nil {
		writeError(c, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(c, ev)
}
