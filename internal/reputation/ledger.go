// Package reputation keeps the per-address trust score: fixed deltas
// applied on attestation and challenge events, append-only history.
package reputation

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/p2e-inferno/teerex-sub003/internal/config"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

type EventType string

const (
	EventAttendance EventType = "attendance"
	EventChallenge  EventType = "challenge"
)

type Store interface {
	LatestReputation(ctx context.Context, address string) (*store.ReputationScore, error)
	AppendReputation(ctx context.Context, row *store.ReputationScore) error
}

type Snapshot struct {
	UserAddress       string    `json:"userAddress"`
	Score             int       `json:"score"`
	TotalAttestations int       `json:"totalAttestations"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type Ledger struct {
	repo   Store
	cfg    config.ReputationConfig
	logger *log.Logger
	// applyTimeout bounds the detached side-effect writes.
	applyTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLedger(repo Store, cfg config.ReputationConfig, logger *log.Logger) *Ledger {
	if logger == nil {
		logger = log.Default()
	}
	return &Ledger{
		repo:         repo,
		cfg:          cfg,
		logger:       logger,
		applyTimeout: 10 * time.Second,
		locks:        map[string]*sync.Mutex{},
	}
}

// lockFor returns the mutex serializing score updates for one address.
func (l *Ledger) lockFor(address string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[address]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[address] = lk
	}
	return lk
}

// Current returns the latest score row for address, or the implicit
// starting snapshot when none exists yet.
func (l *Ledger) Current(ctx context.Context, address string) (*Snapshot, error) {
	row, err := l.repo.LatestReputation(ctx, address)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return &Snapshot{
			UserAddress: store.NormalizeAddress(address),
			Score:       l.cfg.InitialScore,
		}, nil
	}
	return &Snapshot{
		UserAddress:       row.UserAddress,
		Score:             row.Score,
		TotalAttestations: row.TotalAttestations,
		UpdatedAt:         row.UpdatedAt,
	}, nil
}

func (l *Ledger) delta(event EventType) (scoreDelta, attestationDelta int, err error) {
	switch event {
	case EventAttendance:
		return l.cfg.AttendanceDelta, 1, nil
	case EventChallenge:
		return l.cfg.ChallengeDelta, 0, nil
	default:
		return 0, 0, fmt.Errorf("reputation: unknown event type %q", event)
	}
}

// Apply appends a new score row with the fixed delta for event. The
// read-modify-write is serialized per address: concurrent events for
// the same user queue up instead of reading the same base score and
// losing a delta.
func (l *Ledger) Apply(ctx context.Context, address string, event EventType) error {
	scoreDelta, attDelta, err := l.delta(event)
	if err != nil {
		return err
	}

	address = store.NormalizeAddress(address)
	lk := l.lockFor(address)
	lk.Lock()
	defer lk.Unlock()

	current, err := l.Current(ctx, address)
	if err != nil {
		return err
	}
	row := &store.ReputationScore{
		UserAddress:       address,
		Score:             current.Score + scoreDelta,
		TotalAttestations: current.TotalAttestations + attDelta,
	}
	return l.repo.AppendReputation(ctx, row)
}

// ApplyAsync applies the delta detached from the primary action: the
// action has already succeeded, so a ledger failure is logged and
// swallowed, never rolled back or surfaced.
func (l *Ledger) ApplyAsync(address string, event EventType) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.applyTimeout)
		defer cancel()
		if err := l.Apply(ctx, address, event); err != nil {
			l.logger.Printf("reputation update failed (event=%s address=%s): %v", event, address, err)
		}
	}()
}
