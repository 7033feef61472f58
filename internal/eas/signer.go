package eas

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/p2e-inferno/teerex-sub003/internal/apperr"
)

// Domain identifies the registry contract a delegated signature is
// bound to. Including the chain ID makes signatures unreplayable on
// other chains.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

func (d Domain) typedDomain() apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(d.ChainID)),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}

// DelegatedAttest is the tuple a delegated attestation signature
// authorizes a relay to submit.
type DelegatedAttest struct {
	SchemaUID      common.Hash
	Recipient      common.Address
	ExpirationTime uint64
	Revocable      bool
	RefUID         common.Hash
	Data           []byte
	Deadline       uint64
}

type DelegatedRevoke struct {
	SchemaUID common.Hash
	UID       common.Hash
	Deadline  uint64
}

// DeadlineIn returns a signature deadline ttl from now, in unix
// seconds.
func DeadlineIn(ttl time.Duration) uint64 {
	return uint64(time.Now().Add(ttl).Unix())
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

func attestTypedData(d Domain, req DelegatedAttest) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			"Attest": {
				{Name: "schema", Type: "bytes32"},
				{Name: "recipient", Type: "address"},
				{Name: "expirationTime", Type: "uint64"},
				{Name: "revocable", Type: "bool"},
				{Name: "refUID", Type: "bytes32"},
				{Name: "data", Type: "bytes"},
				{Name: "deadline", Type: "uint64"},
			},
		},
		PrimaryType: "Attest",
		Domain:      d.typedDomain(),
		Message: apitypes.TypedDataMessage{
			"schema":         req.SchemaUID.Hex(),
			"recipient":      req.Recipient.Hex(),
			"expirationTime": (*math.HexOrDecimal256)(new(big.Int).SetUint64(req.ExpirationTime)),
			"revocable":      req.Revocable,
			"refUID":         req.RefUID.Hex(),
			"data":           hexutil.Encode(req.Data),
			"deadline":       (*math.HexOrDecimal256)(new(big.Int).SetUint64(req.Deadline)),
		},
	}
}

func revokeTypedData(d Domain, req DelegatedRevoke) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			"Revoke": {
				{Name: "schema", Type: "bytes32"},
				{Name: "uid", Type: "bytes32"},
				{Name: "deadline", Type: "uint64"},
			},
		},
		PrimaryType: "Revoke",
		Domain:      d.typedDomain(),
		Message: apitypes.TypedDataMessage{
			"schema":   req.SchemaUID.Hex(),
			"uid":      req.UID.Hex(),
			"deadline": (*math.HexOrDecimal256)(new(big.Int).SetUint64(req.Deadline)),
		},
	}
}

func AttestDigest(d Domain, req DelegatedAttest) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(attestTypedData(d, req))
	return digest, err
}

func RevokeDigest(d Domain, req DelegatedRevoke) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(revokeTypedData(d, req))
	return digest, err
}

// RecoverAttester returns the address that produced sig over req.
func RecoverAttester(d Domain, req DelegatedAttest, sig []byte) (common.Address, error) {
	digest, err := AttestDigest(d, req)
	if err != nil {
		return common.Address{}, err
	}
	return recoverSigner(digest, sig)
}

func RecoverRevoker(d Domain, req DelegatedRevoke, sig []byte) (common.Address, error) {
	digest, err := RevokeDigest(d, req)
	if err != nil {
		return common.Address{}, err
	}
	return recoverSigner(digest, sig)
}

func recoverSigner(digest, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	cp := make([]byte, 65)
	copy(cp, sig)
	if cp[64] >= 27 {
		cp[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, cp)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Signer is the injected wallet capability of the attestation flow. A
// rejected or unavailable wallet surfaces apperr.Cancellation, distinct
// from real failures.
type Signer interface {
	Address() common.Address
	SignAttest(req DelegatedAttest) ([]byte, error)
	SignRevoke(req DelegatedRevoke) ([]byte, error)
}

// KeySigner signs delegated requests with a local private key.
type KeySigner struct {
	key    *ecdsa.PrivateKey
	addr   common.Address
	domain Domain
}

func NewKeySigner(skHex string, domain Domain) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(skHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	return &KeySigner{
		key:    key,
		addr:   crypto.PubkeyToAddress(key.PublicKey),
		domain: domain,
	}, nil
}

func (s *KeySigner) Address() common.Address { return s.addr }

func (s *KeySigner) SignAttest(req DelegatedAttest) ([]byte, error) {
	digest, err := AttestDigest(s.domain, req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Cancellation, "attest digest unavailable", err)
	}
	return s.sign(digest)
}

func (s *KeySigner) SignRevoke(req DelegatedRevoke) ([]byte, error) {
	digest, err := RevokeDigest(s.domain, req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Cancellation, "revoke digest unavailable", err)
	}
	return s.sign(digest)
}

func (s *KeySigner) sign(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, apperr.Wrap(apperr.Cancellation, "signing failed", err)
	}
	// Recovery id to the conventional 27/28 range used on-chain.
	sig[64] += 27
	return sig, nil
}
