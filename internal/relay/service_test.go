package relay

import (
	"context"
	"log"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/p2e-inferno/teerex-sub003/internal/apperr"
	"github.com/p2e-inferno/teerex-sub003/internal/config"
	"github.com/p2e-inferno/teerex-sub003/internal/eas"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

const (
	serviceKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	userKeyHex    = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var testRegistry = common.HexToAddress("0x4200000000000000000000000000000000000021")

func testDomain() eas.Domain {
	return eas.Domain{
		Name:              "EAS",
		Version:           "1.0.1",
		ChainID:           big.NewInt(8453),
		VerifyingContract: testRegistry,
	}
}

type stubBackend struct {
	receipt *types.Receipt
	sent    []*types.Transaction
}

func (b *stubBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}

func (b *stubBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *stubBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.sent = append(b.sent, tx)
	return nil
}

func (b *stubBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return b.receipt, nil
}

type fakeMirror struct {
	upserted     []*store.Attestation
	revokedSlots int
	revokedUIDs  []string
}

func (m *fakeMirror) UpsertAttestation(ctx context.Context, att *store.Attestation) error {
	m.upserted = append(m.upserted, att)
	return nil
}

func (m *fakeMirror) RevokePreviousActive(ctx context.Context, eventID, schemaUID, recipient, exceptUID string, at time.Time) error {
	m.revokedSlots++
	return nil
}

func (m *fakeMirror) MarkAttestationRevoked(ctx context.Context, uid string, at time.Time) error {
	m.revokedUIDs = append(m.revokedUIDs, uid)
	return nil
}

type fakeSink struct {
	published []*store.Attestation
}

func (s *fakeSink) PublishAttestation(att *store.Attestation) {
	s.published = append(s.published, att)
}

func attestedReceipt(t *testing.T, uid common.Hash, schemaUID common.Hash, recipient, attester common.Address) *types.Receipt {
	t.Helper()
	ev := eas.RegistryABI.Events["Attested"]
	data, err := ev.Inputs.NonIndexed().Pack([32]byte(uid))
	if err != nil {
		t.Fatalf("pack attested data: %v", err)
	}
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(100),
		Logs: []*types.Log{{
			Address: testRegistry,
			Topics: []common.Hash{
				ev.ID,
				common.BytesToHash(recipient.Bytes()),
				common.BytesToHash(attester.Bytes()),
				schemaUID,
			},
			Data: data,
		}},
	}
}

func newTestService(t *testing.T, backend *stubBackend, mirror *fakeMirror, sink *fakeSink) *Service {
	t.Helper()
	cfg := config.RelayConfig{
		ServicePrivateKey: serviceKeyHex,
		SignatureTTL:      time.Hour,
		GasLimit:          500_000,
		ReceiptTimeout:    10 * time.Second,
	}
	svc, err := NewService(cfg, testDomain(), testRegistry, backend, mirror, sink, log.New(log.Writer(), "test: ", 0))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func signedAttestRequest(t *testing.T, eventID string) (AttestByDelegationRequest, common.Hash) {
	t.Helper()
	signer, err := eas.NewKeySigner(userKeyHex, testDomain())
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	schemaUID := common.HexToHash("0x" + strings.Repeat("12", 32))
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data := []byte{0x01, 0x02, 0x03}

	delegated := eas.DelegatedAttest{
		SchemaUID: schemaUID,
		Recipient: recipient,
		Revocable: true,
		Data:      data,
		Deadline:  uint64(time.Now().Add(time.Hour).Unix()),
	}
	sig, err := signer.SignAttest(delegated)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return AttestByDelegationRequest{
		EventID:   eventID,
		ChainID:   8453,
		SchemaUID: schemaUID.Hex(),
		Attester:  signer.Address().Hex(),
		Recipient: recipient.Hex(),
		Data:      hexutil.Encode(data),
		Payload:   map[string]any{"eventId": eventID},
		Revocable: true,
		Deadline:  delegated.Deadline,
		Signature: hexutil.Encode(sig),
	}, schemaUID
}

func TestAttestByDelegation(t *testing.T) {
	req, schemaUID := signedAttestRequest(t, "evt-1")
	uid := common.HexToHash("0x" + strings.Repeat("ab", 32))

	backend := &stubBackend{receipt: attestedReceipt(t, uid, schemaUID,
		common.HexToAddress(req.Recipient), common.HexToAddress(req.Attester))}
	mirror := &fakeMirror{}
	sink := &fakeSink{}
	svc := newTestService(t, backend, mirror, sink)

	res, err := svc.AttestByDelegation(context.Background(), req)
	if err != nil {
		t.Fatalf("attest: %v", err)
	}
	if !res.OK || res.UID != uid.Hex() {
		t.Fatalf("result = %+v", res)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("sent %d transactions", len(backend.sent))
	}
	if len(mirror.upserted) != 1 {
		t.Fatalf("mirrored %d rows", len(mirror.upserted))
	}
	row := mirror.upserted[0]
	if row.UID != uid.Hex() || row.EventID != "evt-1" {
		t.Errorf("mirrored row = %+v", row)
	}
	if mirror.revokedSlots != 1 {
		t.Errorf("previous-active sweep ran %d times", mirror.revokedSlots)
	}
	if len(sink.published) != 1 {
		t.Errorf("published %d feed messages", len(sink.published))
	}
}

func TestAttestByDelegationRejectsWrongAttester(t *testing.T) {
	req, _ := signedAttestRequest(t, "evt-1")
	// Claim the signature belongs to someone else.
	req.Attester = "0x00000000000000000000000000000000000000ff"

	mirror := &fakeMirror{}
	svc := newTestService(t, &stubBackend{}, mirror, nil)

	_, err := svc.AttestByDelegation(context.Background(), req)
	if !apperr.IsKind(err, apperr.Relay) {
		t.Fatalf("want relay error, got %v", err)
	}
	if len(mirror.upserted) != 0 {
		t.Error("rejected request must not be mirrored")
	}
}

func TestAttestByDelegationRejectsExpiredDeadline(t *testing.T) {
	req, _ := signedAttestRequest(t, "evt-1")
	req.Deadline = uint64(time.Now().Add(-time.Minute).Unix())

	svc := newTestService(t, &stubBackend{}, &fakeMirror{}, nil)
	_, err := svc.AttestByDelegation(context.Background(), req)
	if !apperr.IsKind(err, apperr.Relay) {
		t.Fatalf("want relay error, got %v", err)
	}
}

func TestAttestByDelegationRejectsChainMismatch(t *testing.T) {
	req, _ := signedAttestRequest(t, "evt-1")
	req.ChainID = 1

	svc := newTestService(t, &stubBackend{}, &fakeMirror{}, nil)
	_, err := svc.AttestByDelegation(context.Background(), req)
	if !apperr.IsKind(err, apperr.Relay) {
		t.Fatalf("want relay error, got %v", err)
	}
}

func TestRevokeByDelegation(t *testing.T) {
	signer, err := eas.NewKeySigner(userKeyHex, testDomain())
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	schemaUID := common.HexToHash("0x" + strings.Repeat("12", 32))
	uid := common.HexToHash("0x" + strings.Repeat("cd", 32))
	delegated := eas.DelegatedRevoke{
		SchemaUID: schemaUID,
		UID:       uid,
		Deadline:  uint64(time.Now().Add(time.Hour).Unix()),
	}
	sig, err := signer.SignRevoke(delegated)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	backend := &stubBackend{receipt: &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(101),
	}}
	mirror := &fakeMirror{}
	svc := newTestService(t, backend, mirror, nil)

	res, err := svc.RevokeByDelegation(context.Background(), RevokeByDelegationRequest{
		ChainID:   8453,
		SchemaUID: schemaUID.Hex(),
		UID:       uid.Hex(),
		Revoker:   signer.Address().Hex(),
		Deadline:  delegated.Deadline,
		Signature: hexutil.Encode(sig),
	})
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !res.OK || res.UID != uid.Hex() {
		t.Fatalf("result = %+v", res)
	}
	if len(mirror.revokedUIDs) != 1 || mirror.revokedUIDs[0] != uid.Hex() {
		t.Errorf("revoked uids = %v", mirror.revokedUIDs)
	}
}

func TestSplitSignatureNormalizesV(t *testing.T) {
	sig := make([]byte, 65)
	sig[64] = 1
	out, err := splitSignature(sig)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if out.V != 28 {
		t.Errorf("v = %d, want 28", out.V)
	}
	if _, err := splitSignature(sig[:64]); err == nil {
		t.Error("short signature must be rejected")
	}
}
