package challenge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/p2e-inferno/teerex-sub003/internal/config"
	"github.com/p2e-inferno/teerex-sub003/internal/reputation"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

const (
	testRecipient  = "0x00000000000000000000000000000000000000aa"
	testChallenger = "0x00000000000000000000000000000000000000bb"
)

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
	ledger := reputation.NewLedger(repo, config.ReputationConfig{
		InitialScore:    100,
		AttendanceDelta: 5,
		ChallengeDelta:  -2,
	}, log.Default())
	return NewService(repo, ledger, log.Default()), repo
}

func seedAttestation(t *testing.T, repo *store.Repository, uid string) {
	t.Helper()
	err := repo.UpsertAttestation(context.Background(), &store.Attestation{
		UID:       uid,
		EventID:   "evt-1",
		Recipient: testRecipient,
		Attester:  "0x00000000000000000000000000000000000000cc",
	})
	if err != nil {
		t.Fatalf("seed attestation: %v", err)
	}
}

func TestSubmitChallenge(t *testing.T) {
	svc, repo := newTestService(t)
	uid := "0x" + strings.Repeat("aa", 32)
	seedAttestation(t, repo, uid)

	ch, err := svc.Submit(context.Background(), SubmitRequest{
		AttestationUID: uid,
		Challenger:     testChallenger,
		Reason:         "  attendee never showed up  ",
		EvidenceURL:    "https://example.com/proof",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ch.Reason != "attendee never showed up" {
		t.Errorf("reason = %q, want trimmed", ch.Reason)
	}
	if ch.Challenged != testRecipient {
		t.Errorf("challenged = %s, want attestation recipient", ch.Challenged)
	}

	rows, err := svc.ListByAttestation(context.Background(), uid)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("stored %d challenges", len(rows))
	}

	// The filing penalty is applied on a detached goroutine.
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := svc.ledger.Current(context.Background(), testChallenger)
		if err != nil {
			t.Fatalf("current: %v", err)
		}
		if snap.Score == 98 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("score = %d, want 98", snap.Score)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type failingLedgerStore struct{}

func (failingLedgerStore) LatestReputation(ctx context.Context, address string) (*store.ReputationScore, error) {
	return nil, errors.New("ledger down")
}

func (failingLedgerStore) AppendReputation(ctx context.Context, row *store.ReputationScore) error {
	return errors.New("ledger down")
}

func TestSubmitChallengeSurvivesLedgerFailure(t *testing.T) {
	svc, repo := newTestService(t)
	svc.ledger = reputation.NewLedger(failingLedgerStore{}, config.ReputationConfig{
		InitialScore:    100,
		AttendanceDelta: 5,
		ChallengeDelta:  -2,
	}, log.Default())

	uid := "0x" + strings.Repeat("ba", 32)
	seedAttestation(t, repo, uid)

	ch, err := svc.Submit(context.Background(), SubmitRequest{
		AttestationUID: uid,
		Challenger:     testChallenger,
		Reason:         "no-show",
	})
	if err != nil {
		t.Fatalf("a ledger failure must not void the challenge: %v", err)
	}
	if ch == nil || ch.ID == 0 {
		t.Fatalf("challenge = %+v", ch)
	}
	rows, err := svc.ListByAttestation(context.Background(), uid)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("stored %d challenges", len(rows))
	}
}

func TestSubmitRejectsEmptyReason(t *testing.T) {
	svc, repo := newTestService(t)
	uid := "0x" + strings.Repeat("ab", 32)
	seedAttestation(t, repo, uid)

	_, err := svc.Submit(context.Background(), SubmitRequest{
		AttestationUID: uid,
		Challenger:     testChallenger,
		Reason:         "   ",
	})
	if !errors.Is(err, ErrEmptyReason) {
		t.Fatalf("err = %v, want ErrEmptyReason", err)
	}
	rows, _ := svc.ListByAttestation(context.Background(), uid)
	if len(rows) != 0 {
		t.Error("rejected challenge must not be stored")
	}
}

func TestSubmitRejectsSelfChallenge(t *testing.T) {
	svc, repo := newTestService(t)
	uid := "0x" + strings.Repeat("ac", 32)
	seedAttestation(t, repo, uid)

	// Mixed case must still match the stored recipient.
	_, err := svc.Submit(context.Background(), SubmitRequest{
		AttestationUID: uid,
		Challenger:     strings.ToUpper(testRecipient[2:]),
		Reason:         "disputing myself",
	})
	if !errors.Is(err, ErrSelfChallenge) {
		t.Fatalf("err = %v, want ErrSelfChallenge", err)
	}
}

func TestSubmitUnknownAttestation(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Submit(context.Background(), SubmitRequest{
		AttestationUID: "0x" + strings.Repeat("ad", 32),
		Challenger:     testChallenger,
		Reason:         "ghost attestation",
	})
	if !errors.Is(err, ErrUnknownAttestation) {
		t.Fatalf("err = %v, want ErrUnknownAttestation", err)
	}
}

func TestCastVoteIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	uid := "0x" + strings.Repeat("ae", 32)
	seedAttestation(t, repo, uid)

	inserted, err := svc.CastVote(context.Background(), uid, testChallenger, VoteSupport)
	if err != nil || !inserted {
		t.Fatalf("first vote: inserted=%v err=%v", inserted, err)
	}
	inserted, err = svc.CastVote(context.Background(), uid, testChallenger, VoteChallenge)
	if err != nil {
		t.Fatalf("repeat vote: %v", err)
	}
	if inserted {
		t.Fatal("repeat vote by the same voter must be a no-op")
	}

	tally, err := svc.TallyVotes(context.Background(), uid)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.Support != 1 || tally.Challenge != 0 || tally.Total != 1 {
		t.Errorf("tally = %+v", tally)
	}
}

func TestCastVoteValidation(t *testing.T) {
	svc, repo := newTestService(t)
	uid := "0x" + strings.Repeat("af", 32)
	seedAttestation(t, repo, uid)

	if _, err := svc.CastVote(context.Background(), uid, testChallenger, "abstain"); !errors.Is(err, ErrUnknownVoteType) {
		t.Fatalf("err = %v, want ErrUnknownVoteType", err)
	}
	missing := "0x" + strings.Repeat("ba", 32)
	if _, err := svc.CastVote(context.Background(), missing, testChallenger, VoteSupport); !errors.Is(err, ErrUnknownAttestation) {
		t.Fatalf("err = %v, want ErrUnknownAttestation", err)
	}
}

func TestTallyCountsBothSides(t *testing.T) {
	svc, repo := newTestService(t)
	uid := "0x" + strings.Repeat("bb", 32)
	seedAttestation(t, repo, uid)

	voters := []struct {
		addr string
		vote string
	}{
		{"0x0000000000000000000000000000000000000001", VoteSupport},
		{"0x0000000000000000000000000000000000000002", VoteSupport},
		{"0x0000000000000000000000000000000000000003", VoteChallenge},
	}
	for _, v := range voters {
		if _, err := svc.CastVote(context.Background(), uid, v.addr, v.vote); err != nil {
			t.Fatalf("vote %s: %v", v.addr, err)
		}
	}
	tally, err := svc.TallyVotes(context.Background(), uid)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.Support != 2 || tally.Challenge != 1 || tally.Total != 3 {
		t.Errorf("tally = %+v", tally)
	}
}
