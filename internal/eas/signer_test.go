package eas

import (
	"bytes"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const testKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

func testDomain(chainID int64) Domain {
	return Domain{
		Name:              "EAS",
		Version:           "1.0.1",
		ChainID:           big.NewInt(chainID),
		VerifyingContract: common.HexToAddress("0x4200000000000000000000000000000000000021"),
	}
}

func testAttest() DelegatedAttest {
	return DelegatedAttest{
		SchemaUID: common.HexToHash("0x" + strings.Repeat("12", 32)),
		Recipient: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Revocable: true,
		Data:      []byte{0xde, 0xad},
		Deadline:  uint64(time.Now().Add(time.Hour).Unix()),
	}
}

func TestSignAndRecoverAttest(t *testing.T) {
	domain := testDomain(8453)
	signer, err := NewKeySigner(testKeyHex, domain)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	req := testAttest()
	sig, err := signer.SignAttest(req)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d", len(sig))
	}

	recovered, err := RecoverAttester(domain, req, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered %s, want %s", recovered.Hex(), signer.Address().Hex())
	}
}

func TestSignAndRecoverRevoke(t *testing.T) {
	domain := testDomain(8453)
	signer, err := NewKeySigner(testKeyHex, domain)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	req := DelegatedRevoke{
		SchemaUID: common.HexToHash("0x" + strings.Repeat("12", 32)),
		UID:       common.HexToHash("0x" + strings.Repeat("34", 32)),
		Deadline:  uint64(time.Now().Add(time.Hour).Unix()),
	}
	sig, err := signer.SignRevoke(req)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	recovered, err := RecoverRevoker(domain, req, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered %s, want %s", recovered.Hex(), signer.Address().Hex())
	}
}

func TestChainIDBindsDigest(t *testing.T) {
	req := testAttest()

	d1, err := AttestDigest(testDomain(8453), req)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	d2, err := AttestDigest(testDomain(10), req)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if bytes.Equal(d1, d2) {
		t.Error("digests on different chains must differ")
	}

	// A signature from one chain must not recover the signer on
	// another.
	signer, err := NewKeySigner(testKeyHex, testDomain(8453))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	sig, err := signer.SignAttest(req)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	recovered, err := RecoverAttester(testDomain(10), req, sig)
	if err == nil && recovered == signer.Address() {
		t.Error("cross-chain signature recovered to signer")
	}
}

func TestTamperedRequestChangesSigner(t *testing.T) {
	domain := testDomain(8453)
	signer, err := NewKeySigner(testKeyHex, domain)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	req := testAttest()
	sig, err := signer.SignAttest(req)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tampered := req
	tampered.Recipient = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	recovered, err := RecoverAttester(domain, tampered, sig)
	if err == nil && recovered == signer.Address() {
		t.Error("tampered request still recovered to signer")
	}
}
