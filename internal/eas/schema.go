// Package eas implements the client side of the attestation registry:
// schema resolution, payload encoding, delegated (gasless) signing and
// on-chain attestation reads.
package eas

import (
	"context"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/p2e-inferno/teerex-sub003/internal/apperr"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

// A schema or attestation UID is exactly 32 bytes, hex-encoded with a
// 0x prefix.
var uidPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

func IsValidUID(s string) bool {
	return uidPattern.MatchString(s)
}

var ZeroUID = common.Hash{}

type Schema struct {
	UID        common.Hash
	Name       string
	Definition string
	Revocable  bool
	Category   string
}

type SchemaSource interface {
	GetSchemaByName(ctx context.Context, name string) (*store.AttestationSchema, error)
	GetSchemaByUID(ctx context.Context, uid string) (*store.AttestationSchema, error)
}

type SchemaResolver struct {
	source SchemaSource
}

func NewSchemaResolver(source SchemaSource) *SchemaResolver {
	return &SchemaResolver{source: source}
}

// Resolve looks a schema up by name or UID. A missing or malformed
// schema resolves to nil without error: callers treat a nil schema as
// "feature unavailable" and disable the corresponding action. Only
// storage failures are reported, tagged as configuration errors.
func (r *SchemaResolver) Resolve(ctx context.Context, nameOrUID string) (*Schema, error) {
	key := strings.TrimSpace(nameOrUID)
	if key == "" {
		return nil, nil
	}

	var row *store.AttestationSchema
	var err error
	if strings.HasPrefix(key, "0x") {
		if !IsValidUID(key) {
			return nil, nil
		}
		row, err = r.source.GetSchemaByUID(ctx, key)
	} else {
		row, err = r.source.GetSchemaByName(ctx, key)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "schema lookup failed", err)
	}
	if row == nil || !IsValidUID(row.UID) {
		return nil, nil
	}
	return &Schema{
		UID:        common.HexToHash(row.UID),
		Name:       row.Name,
		Definition: row.Definition,
		Revocable:  row.Revocable,
		Category:   row.Category,
	}, nil
}
