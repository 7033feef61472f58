package allowlist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

const testAddr = "0x00000000000000000000000000000000000000aa"

func newTestService(t *testing.T) (*Service, *store.Repository) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db := &store.DB{DB: gormDB}
	store.AutoMigrate(db)
	repo := store.NewRepository(db)
	if err := repo.CreateEvent(context.Background(), &store.Event{
		ID:       "evt-1",
		Title:    "Gated Meetup",
		StartsAt: time.Now().Add(time.Hour),
		Gated:    true,
	}); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return NewService(repo, log.Default()), repo
}

func TestRequestThenApprove(t *testing.T) {
	svc, repo := newTestService(t)

	req, err := svc.Request(context.Background(), "evt-1", testAddr)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Status != store.AllowListRequestPending {
		t.Errorf("status = %s", req.Status)
	}

	if err := svc.Approve(context.Background(), req.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	listed, err := repo.IsAllowListed(context.Background(), "evt-1", testAddr)
	if err != nil {
		t.Fatalf("is allow listed: %v", err)
	}
	if !listed {
		t.Error("approved address must be on the entry list")
	}

	rows, err := svc.Requests(context.Background(), "evt-1", store.AllowListRequestApproved)
	if err != nil {
		t.Fatalf("requests: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("approved rows = %d", len(rows))
	}
}

func TestRequestDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Request(context.Background(), "evt-1", testAddr); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := svc.Request(context.Background(), "evt-1", testAddr); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestRequestUnknownEvent(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Request(context.Background(), "nope", testAddr); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("err = %v, want ErrEventNotFound", err)
	}
}

func TestRejectLeavesEntryListAlone(t *testing.T) {
	svc, repo := newTestService(t)
	req, err := svc.Request(context.Background(), "evt-1", testAddr)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := svc.Reject(context.Background(), req.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	listed, err := repo.IsAllowListed(context.Background(), "evt-1", testAddr)
	if err != nil {
		t.Fatalf("is allow listed: %v", err)
	}
	if listed {
		t.Error("rejected address must not reach the entry list")
	}
}

func TestDecideTwice(t *testing.T) {
	svc, _ := newTestService(t)
	req, err := svc.Request(context.Background(), "evt-1", testAddr)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := svc.Approve(context.Background(), req.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := svc.Reject(context.Background(), req.ID); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("err = %v, want ErrAlreadyDecided", err)
	}
}

func TestDecideUnknownRequest(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Approve(context.Background(), 12345); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("err = %v, want ErrRequestNotFound", err)
	}
}

func TestAddAndRemoveDirectly(t *testing.T) {
	svc, repo := newTestService(t)
	if err := svc.Add(context.Background(), "evt-1", testAddr); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Adding twice is an upsert, not a conflict.
	if err := svc.Add(context.Background(), "evt-1", testAddr); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	entries, err := svc.Entries(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}

	if err := svc.Remove(context.Background(), "evt-1", testAddr); err != nil {
		t.Fatalf("remove: %v", err)
	}
	listed, err := repo.IsAllowListed(context.Background(), "evt-1", testAddr)
	if err != nil {
		t.Fatalf("is allow listed: %v", err)
	}
	if listed {
		t.Error("removed address must not stay listed")
	}

	if err := svc.Remove(context.Background(), "evt-1", testAddr); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
