package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	siwe "github.com/spruceid/siwe-go"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/p2e-inferno/teerex-sub003/internal/config"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

const testKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

func newTestAuth(t *testing.T) (*Service, *store.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db := &store.DB{DB: gormDB}
	store.AutoMigrate(db)
	cfg := config.AuthConfig{
		JWTSecret: "test-secret",
		JWTTTL:    time.Hour,
		NonceTTL:  5 * time.Minute,
	}
	return NewService(cfg, store.NewRepository(db)), db
}

// signedMessage builds a SIWE message for the test key and signs it
// the way a wallet would, with the EIP-191 personal-sign prefix.
func signedMessage(t *testing.T, nonce string) (message, signature, address string) {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	msg, err := siwe.InitMessage("example.com", addr.Hex(), "https://example.com/login", nonce, map[string]any{})
	if err != nil {
		t.Fatalf("init message: %v", err)
	}
	text := msg.String()
	sig, err := crypto.Sign(accounts.TextHash([]byte(text)), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27
	return text, hexutil.Encode(sig), store.NormalizeAddress(addr.Hex())
}

func TestLoginWithSIWE(t *testing.T) {
	svc, _ := newTestAuth(t)
	nonce, err := svc.IssueNonce()
	if err != nil {
		t.Fatalf("issue nonce: %v", err)
	}
	message, signature, addr := signedMessage(t, nonce)

	token, err := svc.LoginWithSIWE(context.Background(), message, signature)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.Parse(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Address != addr {
		t.Errorf("address = %s, want %s", claims.Address, addr)
	}
	if claims.Organizer {
		t.Error("organizer flag must default to false")
	}
}

func TestLoginSetsOrganizerFlag(t *testing.T) {
	svc, db := newTestAuth(t)
	nonce, err := svc.IssueNonce()
	if err != nil {
		t.Fatalf("issue nonce: %v", err)
	}
	message, signature, addr := signedMessage(t, nonce)
	store.EnsureOrganizer(db, addr)

	token, err := svc.LoginWithSIWE(context.Background(), message, signature)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.Parse(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if !claims.Organizer {
		t.Error("organizer flag not set for seeded organizer")
	}
}

func TestLoginConsumesNonce(t *testing.T) {
	svc, _ := newTestAuth(t)
	nonce, err := svc.IssueNonce()
	if err != nil {
		t.Fatalf("issue nonce: %v", err)
	}
	message, signature, _ := signedMessage(t, nonce)

	if _, err := svc.LoginWithSIWE(context.Background(), message, signature); err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, err := svc.LoginWithSIWE(context.Background(), message, signature); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("replayed login err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginRejectsUnknownNonce(t *testing.T) {
	svc, _ := newTestAuth(t)
	message, signature, _ := signedMessage(t, "deadbeefdeadbeef")
	if _, err := svc.LoginWithSIWE(context.Background(), message, signature); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginRejectsTamperedSignature(t *testing.T) {
	svc, _ := newTestAuth(t)
	nonce, err := svc.IssueNonce()
	if err != nil {
		t.Fatalf("issue nonce: %v", err)
	}
	message, signature, _ := signedMessage(t, nonce)
	tampered := []byte(signature)
	if tampered[4] == 'f' {
		tampered[4] = '0'
	} else {
		tampered[4] = 'f'
	}
	if _, err := svc.LoginWithSIWE(context.Background(), message, string(tampered)); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginRejectsEmptyInputs(t *testing.T) {
	svc, _ := newTestAuth(t)
	if _, err := svc.LoginWithSIWE(context.Background(), "", "0x00"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.LoginWithSIWE(context.Background(), "hello", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseRejectsForeignToken(t *testing.T) {
	svc, _ := newTestAuth(t)
	if _, err := svc.Parse("not.a.jwt"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}

	other := NewService(config.AuthConfig{JWTSecret: "other-secret", JWTTTL: time.Hour}, nil)
	nonce, err := svc.IssueNonce()
	if err != nil {
		t.Fatalf("issue nonce: %v", err)
	}
	message, signature, _ := signedMessage(t, nonce)
	token, err := svc.LoginWithSIWE(context.Background(), message, signature)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("foreign parse err = %v, want ErrInvalidCredentials", err)
	}
}

func TestNonceStoreLifecycle(t *testing.T) {
	ns := newNonceStore(50 * time.Millisecond)
	nonce, err := ns.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !ns.Has(nonce) {
		t.Fatal("freshly issued nonce must exist")
	}
	ns.Consume(nonce)
	if ns.Has(nonce) {
		t.Fatal("consumed nonce must be gone")
	}

	nonce, err = ns.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if ns.Has(nonce) {
		t.Fatal("expired nonce must be gone")
	}
}
