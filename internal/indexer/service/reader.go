package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

// Reader is the query side of the attestation mirror: what the indexer
// wrote, shaped for the HTTP handlers.
type Reader struct {
	repo *store.Repository
}

func NewReader(repo *store.Repository) *Reader {
	return &Reader{repo: repo}
}

type Status struct {
	ChainID  uint64 `json:"chainId"`
	Registry string `json:"registry"`
	// SchemaRegistry is the companion contract holding the schema
	// definitions, reported so clients can verify UIDs themselves.
	SchemaRegistry string     `json:"schemaRegistry,omitempty"`
	LastBlock      uint64     `json:"lastBlock"`
	LastTxHash     string     `json:"lastTxHash,omitempty"`
	LastLogIndex   uint       `json:"lastLogIndex"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

// Status reports the mirror's log cursor for one registry. A missing
// cursor means indexing has not started; all counters read zero.
func (r *Reader) Status(ctx context.Context, chainID uint64, registry string) (*Status, error) {
	cursor, err := r.repo.GetLogCursor(ctx, chainID, registry)
	if err != nil {
		return nil, err
	}
	st := &Status{ChainID: chainID, Registry: store.NormalizeAddress(registry)}
	if cursor != nil {
		st.LastBlock = cursor.LastBlock
		st.LastTxHash = cursor.LastTxHash
		st.LastLogIndex = cursor.LastLogIndex
		t := cursor.UpdatedAt
		st.UpdatedAt = &t
	}
	return st, nil
}

type AttestationItem struct {
	UID            string         `json:"uid"`
	SchemaUID      string         `json:"schemaUid"`
	EventID        string         `json:"eventId,omitempty"`
	Attester       string         `json:"attester"`
	Recipient      string         `json:"recipient"`
	Payload        map[string]any `json:"payload,omitempty"`
	TxHash         string         `json:"txHash,omitempty"`
	BlockNumber    uint64         `json:"blockNumber,omitempty"`
	IsRevoked      bool           `json:"isRevoked"`
	RevocationTime *time.Time     `json:"revocationTime,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

func toItem(row store.Attestation) AttestationItem {
	item := AttestationItem{
		UID:            row.UID,
		SchemaUID:      row.SchemaUID,
		EventID:        row.EventID,
		Attester:       row.Attester,
		Recipient:      row.Recipient,
		TxHash:         row.TxHash,
		BlockNumber:    row.BlockNumber,
		IsRevoked:      row.IsRevoked,
		RevocationTime: row.RevocationTime,
		CreatedAt:      row.CreatedAt,
	}
	if row.Payload != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(row.Payload), &payload); err == nil {
			item.Payload = payload
		}
	}
	return item
}

// ListByEvent returns the mirrored attestations for an event, newest
// first, optionally narrowed to one schema.
func (r *Reader) ListByEvent(ctx context.Context, eventID, schemaUID string) ([]AttestationItem, error) {
	rows, err := r.repo.ListAttestationsByEvent(ctx, eventID, schemaUID)
	if err != nil {
		return nil, err
	}
	items := make([]AttestationItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, toItem(row))
	}
	return items, nil
}

// Get returns one mirrored attestation, or nil when the UID is
// unknown.
func (r *Reader) Get(ctx context.Context, uid string) (*AttestationItem, error) {
	row, err := r.repo.GetAttestationByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	item := toItem(*row)
	return &item, nil
}
