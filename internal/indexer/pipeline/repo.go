package pipeline

import (
	"context"
	"time"

	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

type Repo interface {
	GetLogCursor(ctx context.Context, chainID uint64, address string) (*store.LogCursor, error)
	UpsertLogCursor(ctx context.Context, cursor *store.LogCursor) error
	GetSchemaByUID(ctx context.Context, uid string) (*store.AttestationSchema, error)
	UpsertAttestation(ctx context.Context, att *store.Attestation) error
	RevokePreviousActive(ctx context.Context, eventID, schemaUID, recipient, exceptUID string, at time.Time) error
	MarkAttestationRevoked(ctx context.Context, uid string, at time.Time) error
}

type EventSink interface {
	PublishAttestation(att *store.Attestation)
}

// StoreAdapter satisfies Repo over the gorm repository and fans
// attestation writes out to the live feed sink.
type StoreAdapter struct {
	repo *store.Repository
	sink EventSink
}

func NewStoreAdapter(repo *store.Repository, sink EventSink) *StoreAdapter {
	return &StoreAdapter{repo: repo, sink: sink}
}

func (a *StoreAdapter) GetLogCursor(ctx context.Context, chainID uint64, address string) (*store.LogCursor, error) {
	return a.repo.GetLogCursor(ctx, chainID, address)
}

func (a *StoreAdapter) UpsertLogCursor(ctx context.Context, cursor *store.LogCursor) error {
	return a.repo.UpsertLogCursor(ctx, cursor)
}

func (a *StoreAdapter) GetSchemaByUID(ctx context.Context, uid string) (*store.AttestationSchema, error) {
	return a.repo.GetSchemaByUID(ctx, uid)
}

func (a *StoreAdapter) UpsertAttestation(ctx context.Context, att *store.Attestation) error {
	if err := a.repo.UpsertAttestation(ctx, att); err != nil {
		return err
	}
	if a.sink != nil {
		clone := *att
		a.sink.PublishAttestation(&clone)
	}
	return nil
}

func (a *StoreAdapter) RevokePreviousActive(ctx context.Context, eventID, schemaUID, recipient, exceptUID string, at time.Time) error {
	return a.repo.RevokePreviousActive(ctx, eventID, schemaUID, recipient, exceptUID, at)
}

func (a *StoreAdapter) MarkAttestationRevoked(ctx context.Context, uid string, at time.Time) error {
	return a.repo.MarkAttestationRevoked(ctx, uid, at)
}
