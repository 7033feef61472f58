package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/p2e-inferno/teerex-sub003/internal/eas"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

var (
	attestedEvent = eas.RegistryABI.Events["Attested"]
	revokedEvent  = eas.RegistryABI.Events["Revoked"]
)

// RegistryReader fetches the full attestation record for a UID seen in
// a log. The Attested event only carries the UID, so the payload has
// to come from a follow-up contract read.
type RegistryReader interface {
	GetAttestation(ctx context.Context, uid common.Hash) (*eas.OnchainAttestation, error)
}

type decodeHandler func(ctx context.Context, lg types.Log) ([]writeRequest, error)

type schemaSource interface {
	GetSchemaByUID(ctx context.Context, uid string) (*store.AttestationSchema, error)
}

type decoder struct {
	cfg      Config
	registry RegistryReader
	schemas  schemaSource
	blocks   *blockTimeCache
	logger   *log.Logger
	handlers map[common.Hash]decodeHandler
	topics   []common.Hash
}

func newDecoder(cfg Config, client EthClient, registry RegistryReader, schemas schemaSource, logger *log.Logger) *decoder {
	d := &decoder{
		cfg:      cfg,
		registry: registry,
		schemas:  schemas,
		blocks:   newBlockTimeCache(client),
		logger:   logger,
	}
	d.handlers = map[common.Hash]decodeHandler{
		attestedEvent.ID: d.decodeAttested,
		revokedEvent.ID:  d.decodeRevoked,
	}
	d.topics = make([]common.Hash, 0, len(d.handlers))
	for topic := range d.handlers {
		d.topics = append(d.topics, topic)
	}
	return d
}

func (d *decoder) topicsList() []common.Hash {
	return d.topics
}

func (d *decoder) decode(ctx context.Context, lg types.Log) ([]writeRequest, error) {
	if len(lg.Topics) == 0 {
		return nil, nil
	}
	handler, ok := d.handlers[lg.Topics[0]]
	if !ok {
		return nil, nil
	}
	return handler(ctx, lg)
}

func (d *decoder) decodeAttested(ctx context.Context, lg types.Log) ([]writeRequest, error) {
	if len(lg.Topics) < 4 {
		d.logf("Skipping Attested: insufficient topics (got %d)", len(lg.Topics))
		return nil, nil
	}
	uid, ok := unpackUID(attestedEvent.Inputs.NonIndexed(), lg.Data)
	if !ok {
		d.logf("Failed to unpack Attested uid: tx=%s index=%d", lg.TxHash.Hex(), lg.Index)
		return nil, nil
	}

	recipient := common.BytesToAddress(lg.Topics[1].Bytes())
	attester := common.BytesToAddress(lg.Topics[2].Bytes())
	schemaUID := lg.Topics[3]

	att := &store.Attestation{
		UID:         uid.Hex(),
		SchemaUID:   schemaUID.Hex(),
		Attester:    store.NormalizeAddress(attester.Hex()),
		Recipient:   store.NormalizeAddress(recipient.Hex()),
		TxHash:      lg.TxHash.Hex(),
		BlockNumber: lg.BlockNumber,
	}
	d.fillPayload(ctx, att, uid, schemaUID)

	blockTime := time.Now()
	if ts, err := d.blocks.Time(ctx, lg.BlockNumber); err == nil {
		blockTime = ts
	} else {
		d.logf("indexer: failed block time for %d: %v", lg.BlockNumber, err)
	}

	d.logf("Attested: uid=%s schema=%s recipient=%s block=%d", att.UID, att.SchemaUID, att.Recipient, att.BlockNumber)
	req := writeRequest{
		name: "attestation",
		apply: func(ctx context.Context, repo Repo) error {
			if err := repo.UpsertAttestation(ctx, att); err != nil {
				return err
			}
			if att.EventID == "" {
				return nil
			}
			// One active attestation per (event, schema, recipient).
			return repo.RevokePreviousActive(ctx, att.EventID, att.SchemaUID, att.Recipient, att.UID, blockTime)
		},
	}
	return []writeRequest{req}, nil
}

func (d *decoder) decodeRevoked(ctx context.Context, lg types.Log) ([]writeRequest, error) {
	if len(lg.Topics) < 4 {
		d.logf("Skipping Revoked: insufficient topics (got %d)", len(lg.Topics))
		return nil, nil
	}
	uid, ok := unpackUID(revokedEvent.Inputs.NonIndexed(), lg.Data)
	if !ok {
		d.logf("Failed to unpack Revoked uid: tx=%s index=%d", lg.TxHash.Hex(), lg.Index)
		return nil, nil
	}

	blockTime := time.Now()
	if ts, err := d.blocks.Time(ctx, lg.BlockNumber); err == nil {
		blockTime = ts
	} else {
		d.logf("indexer: failed block time for %d: %v", lg.BlockNumber, err)
	}

	d.logf("Revoked: uid=%s block=%d", uid.Hex(), lg.BlockNumber)
	req := writeRequest{
		name: "revocation",
		apply: func(ctx context.Context, repo Repo) error {
			err := repo.MarkAttestationRevoked(ctx, uid.Hex(), blockTime)
			if errors.Is(err, store.ErrNotFound) {
				// Revocation for a row we never mirrored. Nothing to flip.
				return nil
			}
			return err
		},
	}
	return []writeRequest{req}, nil
}

// fillPayload reads the attestation record back from the registry and
// decodes its data with the mirrored schema definition, recovering the
// event ID and the human-readable payload. A failure at any step
// leaves those fields empty; the row is still mirrored.
func (d *decoder) fillPayload(ctx context.Context, att *store.Attestation, uid, schemaUID common.Hash) {
	if d.registry == nil {
		return
	}
	onchain, err := d.registry.GetAttestation(ctx, uid)
	if err != nil || !onchain.Exists() {
		d.logf("registry read failed for %s: %v", uid.Hex(), err)
		return
	}
	att.Data = hexutil.Encode(onchain.Data)

	schema, err := d.schemaDefinition(ctx, schemaUID)
	if err != nil || schema == "" {
		return
	}
	decoded, err := eas.NewEncoder().Decode(schema, onchain.Data)
	if err != nil {
		d.logf("payload decode failed for %s: %v", uid.Hex(), err)
		return
	}
	if id, ok := decoded["eventId"].(string); ok {
		att.EventID = id
	}
	if raw, err := json.Marshal(jsonifyDecoded(decoded)); err == nil {
		att.Payload = string(raw)
	}
}

func (d *decoder) schemaDefinition(ctx context.Context, uid common.Hash) (string, error) {
	if d.schemas == nil {
		return "", nil
	}
	row, err := d.schemas.GetSchemaByUID(ctx, uid.Hex())
	if err != nil || row == nil {
		return "", err
	}
	return row.Definition, nil
}

func unpackUID(args abi.Arguments, data []byte) (common.Hash, bool) {
	values, err := args.Unpack(data)
	if err != nil || len(values) == 0 {
		return common.Hash{}, false
	}
	raw, ok := values[0].([32]byte)
	if !ok {
		return common.Hash{}, false
	}
	return common.Hash(raw), true
}

// jsonifyDecoded rewrites abi-native values into JSON-friendly ones.
func jsonifyDecoded(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case common.Address:
			out[k] = store.NormalizeAddress(t.Hex())
		case [32]byte:
			out[k] = hexutil.Encode(t[:])
		case *big.Int:
			out[k] = t.String()
		case []byte:
			out[k] = hexutil.Encode(t)
		default:
			out[k] = v
		}
	}
	return out
}

func (d *decoder) logf(format string, args ...any) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}
