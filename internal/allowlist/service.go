package allowlist

import (
	"context"
	"errors"
	"log"

	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrRequestNotFound = errors.New("request not found")
	ErrAlreadyDecided  = errors.New("request already decided")
)

// Service manages per-event allow lists for gated events. Users file
// requests; the organizer approves or rejects them. Approval copies
// the address onto the entry list the attestation flows check.
type Service struct {
	repo   *store.Repository
	logger *log.Logger
}

func NewService(repo *store.Repository, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Request files a pending allow-list request. A duplicate request for
// the same (event, address) pair is a conflict.
func (s *Service) Request(ctx context.Context, eventID, address string) (*store.AllowListRequest, error) {
	ev, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, ErrEventNotFound
	}

	req := &store.AllowListRequest{
		EventID: ev.ID,
		Address: store.NormalizeAddress(address),
		Status:  store.AllowListRequestPending,
	}
	if err := s.repo.CreateAllowListRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Approve moves a pending request to approved and adds the address to
// the event's entry list. Only pending requests can be decided.
func (s *Service) Approve(ctx context.Context, requestID uint) error {
	req, err := s.decide(ctx, requestID, store.AllowListRequestApproved)
	if err != nil {
		return err
	}
	return s.repo.UpsertAllowListEntry(ctx, &store.AllowListEntry{
		EventID: req.EventID,
		Address: req.Address,
	})
}

// Reject moves a pending request to rejected.
func (s *Service) Reject(ctx context.Context, requestID uint) error {
	_, err := s.decide(ctx, requestID, store.AllowListRequestRejected)
	return err
}

func (s *Service) decide(ctx context.Context, requestID uint, status string) (*store.AllowListRequest, error) {
	req, err := s.repo.GetAllowListRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if req.Status != store.AllowListRequestPending {
		return nil, ErrAlreadyDecided
	}
	if err := s.repo.SetAllowListRequestStatus(ctx, requestID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Lost a race with another decision on the same request.
			return nil, ErrAlreadyDecided
		}
		return nil, err
	}
	req.Status = status
	return req, nil
}

// Remove drops an address from the event's entry list directly.
func (s *Service) Remove(ctx context.Context, eventID, address string) error {
	return s.repo.DeleteAllowListEntry(ctx, eventID, store.NormalizeAddress(address))
}

// Add puts an address on the entry list without a request, for
// organizer-managed lists.
func (s *Service) Add(ctx context.Context, eventID, address string) error {
	ev, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if ev == nil {
		return ErrEventNotFound
	}
	return s.repo.UpsertAllowListEntry(ctx, &store.AllowListEntry{
		EventID: ev.ID,
		Address: store.NormalizeAddress(address),
	})
}

// Entries lists the approved addresses for an event.
func (s *Service) Entries(ctx context.Context, eventID string) ([]store.AllowListEntry, error) {
	return s.repo.ListAllowListEntries(ctx, eventID)
}

// Requests lists requests for an event, optionally filtered by status.
func (s *Service) Requests(ctx context.Context, eventID, status string) ([]store.AllowListRequest, error) {
	return s.repo.ListAllowListRequests(ctx, eventID, status)
}
