package reputation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/p2e-inferno/teerex-sub003/internal/config"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

const testAddr = "0x00000000000000000000000000000000000000aa"

func newTestLedger(t *testing.T) (*Ledger, *store.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db := &store.DB{DB: gormDB}
	store.AutoMigrate(db)
	cfg := config.ReputationConfig{InitialScore: 100, AttendanceDelta: 5, ChallengeDelta: -2}
	return NewLedger(store.NewRepository(db), cfg, log.Default()), db
}

func TestCurrentDefaultsToInitialScore(t *testing.T) {
	ledger, _ := newTestLedger(t)
	snap, err := ledger.Current(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if snap.Score != 100 || snap.TotalAttestations != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.UserAddress != testAddr {
		t.Errorf("address = %s", snap.UserAddress)
	}
}

func TestApplyAttendance(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if err := ledger.Apply(context.Background(), testAddr, EventAttendance); err != nil {
		t.Fatalf("apply: %v", err)
	}
	snap, err := ledger.Current(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if snap.Score != 105 || snap.TotalAttestations != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestApplyChallengePenalty(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if err := ledger.Apply(context.Background(), testAddr, EventChallenge); err != nil {
		t.Fatalf("apply: %v", err)
	}
	snap, err := ledger.Current(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if snap.Score != 98 || snap.TotalAttestations != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestApplyAccumulates(t *testing.T) {
	ledger, db := newTestLedger(t)
	events := []EventType{EventAttendance, EventAttendance, EventChallenge}
	for _, ev := range events {
		if err := ledger.Apply(context.Background(), testAddr, ev); err != nil {
			t.Fatalf("apply %s: %v", ev, err)
		}
	}
	snap, err := ledger.Current(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if snap.Score != 108 || snap.TotalAttestations != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	// History stays append-only, one row per applied event.
	var count int64
	if err := db.Model(&store.ReputationScore{}).Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != int64(len(events)) {
		t.Errorf("history rows = %d, want %d", count, len(events))
	}
}

func TestApplyConcurrentSameAddress(t *testing.T) {
	ledger, _ := newTestLedger(t)
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- ledger.Apply(context.Background(), testAddr, EventAttendance)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	snap, err := ledger.Current(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if snap.Score != 100+workers*5 || snap.TotalAttestations != workers {
		t.Errorf("snapshot = %+v, want every concurrent delta applied", snap)
	}
}

type failingStore struct{}

func (failingStore) LatestReputation(ctx context.Context, address string) (*store.ReputationScore, error) {
	return nil, errors.New("reputation table unavailable")
}

func (failingStore) AppendReputation(ctx context.Context, row *store.ReputationScore) error {
	return errors.New("reputation table unavailable")
}

type logBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *logBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *logBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestApplyAsyncSwallowsStoreFailure(t *testing.T) {
	buf := &logBuffer{}
	cfg := config.ReputationConfig{InitialScore: 100, AttendanceDelta: 5, ChallengeDelta: -2}
	ledger := NewLedger(&failingStore{}, cfg, log.New(buf, "", 0))

	ledger.ApplyAsync(testAddr, EventAttendance)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), "reputation update failed") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("store failure must be logged, not surfaced")
}

func TestApplyUnknownEvent(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if err := ledger.Apply(context.Background(), testAddr, EventType("bribe")); err == nil {
		t.Fatal("unknown event type must be rejected")
	}
}
