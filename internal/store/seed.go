package store

import (
	"context"
	"log"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	SchemaGoing      = "teerex.going"
	SchemaAttendance = "teerex.attendance"
	SchemaReview     = "teerex.review"
)

// Well-known schemas mirrored from the attestation registry. UIDs
// default to the registry derivation keccak256(definition ++ revocable)
// and are replaced by the real on-chain UID when one is registered.
var wellKnownSchemas = []AttestationSchema{
	{
		Name:       SchemaGoing,
		Definition: "string eventId,string eventTitle,address declarer,uint256 timestamp",
		Revocable:  true,
		Category:   "attendance",
	},
	{
		Name:       SchemaAttendance,
		Definition: "string eventId,string eventTitle,address attendee,uint256 timestamp,string location",
		Revocable:  true,
		Category:   "attendance",
	},
	{
		Name:       SchemaReview,
		Definition: "string eventId,address attendee,uint8 rating,string review,uint256 timestamp",
		Revocable:  false,
		Category:   "feedback",
	},
}

func SeedSchemas(db *DB) {
	ctx := context.Background()
	repo := NewRepository(db)
	for _, schema := range wellKnownSchemas {
		if schema.UID == "" {
			schema.UID = deriveSchemaUID(schema.Definition, schema.Revocable)
		}
		if err := repo.UpsertSchema(ctx, &schema); err != nil {
			log.Fatalf("seed schema %s: %v", schema.Name, err)
		}
	}
	log.Printf("seeded %d attestation schemas", len(wellKnownSchemas))
}

func deriveSchemaUID(definition string, revocable bool) string {
	payload := []byte(definition)
	if revocable {
		payload = append(payload, 0x01)
	} else {
		payload = append(payload, 0x00)
	}
	return hexutil.Encode(crypto.Keccak256(payload))
}

// EnsureOrganizer seeds the configured organizer wallet so SIWE logins
// from it resolve to an organizer row.
func EnsureOrganizer(db *DB, address string) {
	addr := NormalizeAddress(address)
	if addr == "" {
		return
	}
	var count int64
	if err := db.Model(&Organizer{}).Where("address = ?", addr).Count(&count).Error; err != nil {
		log.Fatalf("organizer lookup failed: %v", err)
	}
	if count > 0 {
		return
	}
	if err := db.Create(&Organizer{Address: addr}).Error; err != nil {
		log.Fatalf("create organizer failed: %v", err)
	}
	log.Printf("seeded organizer %s", addr)
}
