package challenge

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/p2e-inferno/teerex-sub003/internal/reputation"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

const (
	VoteSupport   = "support"
	VoteChallenge = "challenge"
)

var (
	ErrEmptyReason        = errors.New("challenge reason must not be empty")
	ErrSelfChallenge      = errors.New("cannot challenge your own attestation")
	ErrUnknownVoteType    = errors.New("unknown vote type")
	ErrUnknownAttestation = errors.New("attestation not found")
)

type SubmitRequest struct {
	AttestationUID      string `json:"attestationUid" binding:"required"`
	Challenger          string `json:"challenger" binding:"required"`
	Reason              string `json:"reason" binding:"required"`
	EvidenceDescription string `json:"evidenceDescription"`
	EvidenceURL         string `json:"evidenceUrl"`
	StakeAmount         string `json:"stakeAmount"`
}

// Tally is computed from the stored votes at read time. No running
// counters are kept, so a tally is as fresh as the query that built it.
type Tally struct {
	AttestationUID string `json:"attestationUid"`
	Support        int    `json:"support"`
	Challenge      int    `json:"challenge"`
	Total          int    `json:"total"`
}

type Service struct {
	repo   *store.Repository
	ledger *reputation.Ledger
	logger *log.Logger
}

func NewService(repo *store.Repository, ledger *reputation.Ledger, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{repo: repo, ledger: ledger, logger: logger}
}

// Submit records a dispute against someone else's attestation. All
// validation happens before any write: an empty reason or a
// self-challenge leaves the database untouched. Filing a challenge
// costs the challenger a small reputation penalty regardless of the
// eventual outcome, applied asynchronously so a ledger failure never
// voids the challenge itself.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*store.Challenge, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, ErrEmptyReason
	}

	row, err := s.repo.GetAttestationByUID(ctx, req.AttestationUID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrUnknownAttestation
	}

	challenger := store.NormalizeAddress(req.Challenger)
	challenged := store.NormalizeAddress(row.Recipient)
	if challenger == challenged {
		return nil, ErrSelfChallenge
	}

	ch := &store.Challenge{
		AttestationUID:      row.UID,
		Challenger:          challenger,
		Challenged:          challenged,
		Reason:              strings.TrimSpace(req.Reason),
		EvidenceDescription: req.EvidenceDescription,
		EvidenceURL:         req.EvidenceURL,
		StakeAmount:         req.StakeAmount,
	}
	if err := s.repo.CreateChallenge(ctx, ch); err != nil {
		return nil, err
	}

	s.ledger.ApplyAsync(challenger, reputation.EventChallenge)
	return ch, nil
}

// CastVote records one vote per (attestation, voter). A repeat vote by
// the same voter is ignored, not rejected: the unique constraint makes
// the operation idempotent. Weight is fixed at 1 for every vote.
func (s *Service) CastVote(ctx context.Context, attestationUID, voter, voteType string) (bool, error) {
	if voteType != VoteSupport && voteType != VoteChallenge {
		return false, ErrUnknownVoteType
	}
	row, err := s.repo.GetAttestationByUID(ctx, attestationUID)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, ErrUnknownAttestation
	}

	return s.repo.InsertVote(ctx, &store.Vote{
		AttestationUID: row.UID,
		Voter:          store.NormalizeAddress(voter),
		VoteType:       voteType,
		Weight:         1,
	})
}

// TallyVotes filters the full vote set for the attestation and counts
// by type.
func (s *Service) TallyVotes(ctx context.Context, attestationUID string) (*Tally, error) {
	votes, err := s.repo.ListVotesByAttestation(ctx, attestationUID)
	if err != nil {
		return nil, err
	}
	t := &Tally{AttestationUID: attestationUID}
	for _, v := range votes {
		switch v.VoteType {
		case VoteSupport:
			t.Support += v.Weight
		case VoteChallenge:
			t.Challenge += v.Weight
		}
		t.Total += v.Weight
	}
	return t, nil
}

// ListByAttestation returns the filed challenges for an attestation,
// newest first.
func (s *Service) ListByAttestation(ctx context.Context, attestationUID string) ([]store.Challenge, error) {
	return s.repo.ListChallengesByAttestation(ctx, attestationUID)
}
