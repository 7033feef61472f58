// Package relay submits delegated attestation requests on chain with
// the funded service wallet, so end users never pay gas themselves.
package relay

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/p2e-inferno/teerex-sub003/internal/apperr"
	"github.com/p2e-inferno/teerex-sub003/internal/config"
	"github.com/p2e-inferno/teerex-sub003/internal/eas"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

// Minimal slice of the Unlock PublicLock ABI: the service wallet only
// ever renounces its own lock-manager role.
const lockABIJSON = `[{"type":"function","name":"renounceLockManager","inputs":[],"outputs":[]}]`

var lockABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(lockABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

type EthBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Mirror interface {
	UpsertAttestation(ctx context.Context, att *store.Attestation) error
	RevokePreviousActive(ctx context.Context, eventID, schemaUID, recipient, exceptUID string, at time.Time) error
	MarkAttestationRevoked(ctx context.Context, uid string, at time.Time) error
}

// Sink receives successfully mirrored attestations (the live feed).
type Sink interface {
	PublishAttestation(att *store.Attestation)
}

type Service struct {
	cfg      config.RelayConfig
	domain   eas.Domain
	key      *ecdsa.PrivateKey
	addr     common.Address
	registry common.Address
	chainID  *big.Int
	client   EthBackend
	mirror   Mirror
	sink     Sink
	logger   *log.Logger
}

func NewService(cfg config.RelayConfig, domain eas.Domain, registry common.Address, client EthBackend, mirror Mirror, sink Sink, logger *log.Logger) (*Service, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.ServicePrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse service key: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:      cfg,
		domain:   domain,
		key:      key,
		addr:     crypto.PubkeyToAddress(key.PublicKey),
		registry: registry,
		chainID:  domain.ChainID,
		client:   client,
		mirror:   mirror,
		sink:     sink,
		logger:   logger,
	}, nil
}

// ServiceAddress is the funded wallet that pays gas for every relayed
// operation.
func (s *Service) ServiceAddress() common.Address { return s.addr }

type attestationRequestData struct {
	Recipient      common.Address
	ExpirationTime uint64
	Revocable      bool
	RefUID         [32]byte
	Data           []byte
	Value          *big.Int
}

type contractSignature struct {
	V uint8
	R [32]byte
	S [32]byte
}

type delegatedAttestationRequest struct {
	Schema    [32]byte
	Data      attestationRequestData
	Signature contractSignature
	Attester  common.Address
	Deadline  uint64
}

type revocationRequestData struct {
	Uid   [32]byte
	Value *big.Int
}

type delegatedRevocationRequest struct {
	Schema    [32]byte
	Data      revocationRequestData
	Signature contractSignature
	Revoker   common.Address
	Deadline  uint64
}

func splitSignature(sig []byte) (contractSignature, error) {
	if len(sig) != 65 {
		return contractSignature{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	var out contractSignature
	copy(out.R[:], sig[:32])
	copy(out.S[:], sig[32:64])
	out.V = sig[64]
	if out.V < 27 {
		out.V += 27
	}
	return out, nil
}

// AttestByDelegation verifies the delegated signature and submits the
// attestation on chain. On success the attestation is mirrored into the
// database and the new UID returned; on any failure nothing is
// mirrored.
func (s *Service) AttestByDelegation(ctx context.Context, req AttestByDelegationRequest) (*Result, error) {
	if !eas.IsValidUID(req.SchemaUID) {
		return nil, apperr.New(apperr.Relay, "invalid schema uid")
	}
	if !common.IsHexAddress(req.Attester) || !common.IsHexAddress(req.Recipient) {
		return nil, apperr.New(apperr.Relay, "invalid attester or recipient address")
	}
	if req.ChainID != 0 && req.ChainID != s.chainID.Uint64() {
		return nil, apperr.New(apperr.Relay, "chain id mismatch")
	}
	if req.Deadline <= uint64(time.Now().Unix()) {
		return nil, apperr.New(apperr.Relay, "signature deadline expired")
	}
	data, err := hexutil.Decode(req.Data)
	if err != nil {
		return nil, apperr.Wrap(apperr.Relay, "invalid data payload", err)
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		return nil, apperr.Wrap(apperr.Relay, "invalid signature encoding", err)
	}

	var refUID common.Hash
	if req.RefUID != "" {
		if !eas.IsValidUID(req.RefUID) {
			return nil, apperr.New(apperr.Relay, "invalid ref uid")
		}
		refUID = common.HexToHash(req.RefUID)
	}

	delegated := eas.DelegatedAttest{
		SchemaUID:      common.HexToHash(req.SchemaUID),
		Recipient:      common.HexToAddress(req.Recipient),
		ExpirationTime: req.ExpirationTime,
		Revocable:      req.Revocable,
		RefUID:         refUID,
		Data:           data,
		Deadline:       req.Deadline,
	}
	recovered, err := eas.RecoverAttester(s.domain, delegated, sig)
	if err != nil {
		return nil, apperr.Wrap(apperr.Relay, "signature recovery failed", err)
	}
	if recovered != common.HexToAddress(req.Attester) {
		return nil, apperr.New(apperr.Relay, "signature does not match attester")
	}

	contractSig, err := splitSignature(sig)
	if err != nil {
		return nil, apperr.Wrap(apperr.Relay, "malformed signature", err)
	}
	input, err := eas.RegistryABI.Pack("attestByDelegation", delegatedAttestationRequest{
		Schema: delegated.SchemaUID,
		Data: attestationRequestData{
			Recipient:      delegated.Recipient,
			ExpirationTime: delegated.ExpirationTime,
			Revocable:      delegated.Revocable,
			RefUID:         delegated.RefUID,
			Data:           delegated.Data,
			Value:          big.NewInt(0),
		},
		Signature: contractSig,
		Attester:  recovered,
		Deadline:  delegated.Deadline,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Relay, "pack attestByDelegation", err)
	}

	receipt, txHash, err := s.submit(ctx, s.registry, input)
	if err != nil {
		return nil, err
	}
	uid, ok := s.extractAttestedUID(receipt)
	if !ok {
		return nil, apperr.New(apperr.Relay, "attested uid missing from receipt")
	}

	payloadJSON := ""
	if len(req.Payload) > 0 {
		if raw, err := json.Marshal(req.Payload); err == nil {
			payloadJSON = string(raw)
		}
	}
	att := &store.Attestation{
		UID:         uid.Hex(),
		SchemaUID:   req.SchemaUID,
		EventID:     req.EventID,
		Attester:    recovered.Hex(),
		Recipient:   req.Recipient,
		Data:        hexutil.Encode(data),
		Payload:     payloadJSON,
		TxHash:      txHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}
	if err := s.mirror.UpsertAttestation(ctx, att); err != nil {
		return nil, apperr.Wrap(apperr.Relay, "mirror attestation", err)
	}
	// One active attestation per (event, schema, recipient) slot.
	if err := s.mirror.RevokePreviousActive(ctx, req.EventID, req.SchemaUID, req.Recipient, uid.Hex(), time.Now()); err != nil {
		s.logger.Printf("revoke previous active failed (event=%s): %v", req.EventID, err)
	}
	if s.sink != nil {
		clone := *att
		s.sink.PublishAttestation(&clone)
	}
	return &Result{OK: true, UID: uid.Hex(), TxHash: txHash.Hex()}, nil
}

// RevokeByDelegation verifies and submits a delegated revocation, then
// flips the mirrored row.
func (s *Service) RevokeByDelegation(ctx context.Context, req RevokeByDelegationRequest) (*Result, error) {
	if !eas.IsValidUID(req.SchemaUID) || !eas.IsValidUID(req.UID) {
		return nil, apperr.New(apperr.Relay, "invalid schema or attestation uid")
	}
	if !common.IsHexAddress(req.Revoker) {
		return nil, apperr.New(apperr.Relay, "invalid revoker address")
	}
	if req.ChainID != 0 && req.ChainID != s.chainID.Uint64() {
		return nil, apperr.New(apperr.Relay, "chain id mismatch")
	}
	if req.Deadline <= uint64(time.Now().Unix()) {
		return nil, apperr.New(apperr.Relay, "signature deadline expired")
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		return nil, apperr.Wrap(apperr.Relay, "invalid signature encoding", err)
	}

	delegated := eas.DelegatedRevoke{
		SchemaUID: common.HexToHash(req.SchemaUID),
		UID:       common.HexToHash(req.UID),
		Deadline:  req.Deadline,
	}
	recovered, err := eas.RecoverRevoker(s.domain, delegated, sig)
	if err != nil {
		return nil, apperr.Wrap(apperr.Relay, "signature recovery failed", err)
	}
	if recovered != common.HexToAddress(req.Revoker) {
		return nil, apperr.New(apperr.Relay, "signature does not match revoker")
	}

	contractSig, err := splitSignature(sig)
	if err != nil {
		return nil, apperr.Wrap(apperr.Relay, "malformed signature", err)
	}
	input, err := eas.RegistryABI.Pack("revokeByDelegation", delegatedRevocationRequest{
		Schema:    delegated.SchemaUID,
		Data:      revocationRequestData{Uid: delegated.UID, Value: big.NewInt(0)},
		Signature: contractSig,
		Revoker:   recovered,
		Deadline:  delegated.Deadline,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Relay, "pack revokeByDelegation", err)
	}

	_, txHash, err := s.submit(ctx, s.registry, input)
	if err != nil {
		return nil, err
	}
	if err := s.mirror.MarkAttestationRevoked(ctx, req.UID, time.Now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Printf("mirror revocation failed (uid=%s): %v", req.UID, err)
	}
	return &Result{OK: true, UID: req.UID, TxHash: txHash.Hex()}, nil
}

// RemoveServiceManager has the service wallet renounce its lock-manager
// role on an event's lock contract.
func (s *Service) RemoveServiceManager(ctx context.Context, lockAddress string) (*Result, error) {
	if !common.IsHexAddress(lockAddress) {
		return nil, apperr.New(apperr.Relay, "invalid lock address")
	}
	input, err := lockABI.Pack("renounceLockManager")
	if err != nil {
		return nil, apperr.Wrap(apperr.Relay, "pack renounceLockManager", err)
	}
	_, txHash, err := s.submit(ctx, common.HexToAddress(lockAddress), input)
	if err != nil {
		return nil, err
	}
	return &Result{OK: true, TxHash: txHash.Hex()}, nil
}

func (s *Service) submit(ctx context.Context, to common.Address, input []byte) (*types.Receipt, common.Hash, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.addr)
	if err != nil {
		return nil, common.Hash{}, apperr.Wrap(apperr.Relay, "fetch nonce", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, common.Hash{}, apperr.Wrap(apperr.Relay, "suggest gas price", err)
	}
	tx, err := types.SignNewTx(s.key, types.LatestSignerForChainID(s.chainID), &types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      s.cfg.GasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})
	if err != nil {
		return nil, common.Hash{}, apperr.Wrap(apperr.Relay, "sign transaction", err)
	}
	if err := s.client.SendTransaction(ctx, tx); err != nil {
		return nil, common.Hash{}, apperr.Wrap(apperr.Relay, "send transaction", err)
	}
	receipt, err := s.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, common.Hash{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, common.Hash{}, apperr.New(apperr.Relay, fmt.Sprintf("transaction reverted: %s", tx.Hash().Hex()))
	}
	return receipt, tx.Hash(), nil
}

func (s *Service) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		receipt, err := s.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			s.logger.Printf("receipt poll failed (tx=%s): %v", txHash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, apperr.Wrap(apperr.Relay, "timed out waiting for receipt", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Service) extractAttestedUID(receipt *types.Receipt) (common.Hash, bool) {
	attestedTopic := eas.RegistryABI.Events["Attested"].ID
	for _, lg := range receipt.Logs {
		if lg.Address != s.registry || len(lg.Topics) == 0 || lg.Topics[0] != attestedTopic {
			continue
		}
		values, err := eas.RegistryABI.Events["Attested"].Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil || len(values) != 1 {
			continue
		}
		if uid, ok := values[0].([32]byte); ok {
			return common.Hash(uid), true
		}
	}
	return common.Hash{}, false
}
