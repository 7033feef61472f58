package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

const registryAddr = "0x4200000000000000000000000000000000000021"

func newTestReader(t *testing.T) (*Reader, *store.Repository) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db := &store.DB{DB: gormDB}
	store.AutoMigrate(db)
	repo := store.NewRepository(db)
	return NewReader(repo), repo
}

func uidN(b string) string { return "0x" + strings.Repeat(b, 32) }

func TestStatusWithoutCursor(t *testing.T) {
	reader, _ := newTestReader(t)
	st, err := reader.Status(context.Background(), 8453, registryAddr)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.LastBlock != 0 || st.UpdatedAt != nil {
		t.Errorf("status = %+v, want zeroed", st)
	}
	if st.Registry != registryAddr {
		t.Errorf("registry = %s", st.Registry)
	}
}

func TestStatusReportsCursor(t *testing.T) {
	reader, repo := newTestReader(t)
	err := repo.UpsertLogCursor(context.Background(), &store.LogCursor{
		ChainID:      8453,
		Address:      registryAddr,
		LastBlock:    1234,
		LastTxHash:   uidN("aa"),
		LastLogIndex: 2,
	})
	if err != nil {
		t.Fatalf("upsert cursor: %v", err)
	}

	st, err := reader.Status(context.Background(), 8453, registryAddr)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.LastBlock != 1234 || st.LastLogIndex != 2 || st.UpdatedAt == nil {
		t.Errorf("status = %+v", st)
	}
}

func TestListByEventDecodesPayload(t *testing.T) {
	reader, repo := newTestReader(t)
	ctx := context.Background()

	schemaUID := uidN("11")
	rows := []store.Attestation{
		{UID: uidN("a1"), SchemaUID: schemaUID, EventID: "evt-1", Recipient: uidN("b1")[:42], Payload: `{"eventId":"evt-1","eventTitle":"Meetup"}`},
		{UID: uidN("a2"), SchemaUID: uidN("22"), EventID: "evt-1", Recipient: uidN("b1")[:42]},
		{UID: uidN("a3"), SchemaUID: schemaUID, EventID: "evt-2", Recipient: uidN("b1")[:42]},
	}
	for i := range rows {
		if err := repo.UpsertAttestation(ctx, &rows[i]); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	items, err := reader.ListByEvent(ctx, "evt-1", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	items, err = reader.ListByEvent(ctx, "evt-1", schemaUID)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("filtered items = %d, want 1", len(items))
	}
	if items[0].Payload["eventTitle"] != "Meetup" {
		t.Errorf("payload = %v", items[0].Payload)
	}
}

func TestGetUnknownUID(t *testing.T) {
	reader, _ := newTestReader(t)
	item, err := reader.Get(context.Background(), uidN("ff"))
	if err != nil || item != nil {
		t.Fatalf("get = %v, %v, want nil, nil", item, err)
	}
}

func TestGetCarriesRevocation(t *testing.T) {
	reader, repo := newTestReader(t)
	ctx := context.Background()

	uid := uidN("cc")
	if err := repo.UpsertAttestation(ctx, &store.Attestation{UID: uid, EventID: "evt-1", Recipient: uidN("b1")[:42]}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	revokedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.MarkAttestationRevoked(ctx, uid, revokedAt); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	item, err := reader.Get(ctx, uid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item == nil || !item.IsRevoked || item.RevocationTime == nil {
		t.Fatalf("item = %+v, want revoked with timestamp", item)
	}
}
