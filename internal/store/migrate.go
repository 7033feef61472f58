package store

import "log"

func AutoMigrate(db *DB) {
	if err := db.AutoMigrate(
		&Organizer{},
		&Event{},
		&AttestationSchema{},
		&Attestation{},
		&Challenge{},
		&Vote{},
		&ReputationScore{},
		&AllowListEntry{},
		&AllowListRequest{},
		&LogCursor{},
	); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
}
