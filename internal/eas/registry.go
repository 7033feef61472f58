package eas

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Hand-trimmed registry ABI: the delegated write paths, the lookup the
// reconciler needs, and the two log events the indexer follows.
const registryABIJSON = `[
  {
    "type": "function",
    "name": "getAttestation",
    "stateMutability": "view",
    "inputs": [{"name": "uid", "type": "bytes32"}],
    "outputs": [
      {
        "name": "attestation",
        "type": "tuple",
        "components": [
          {"name": "uid", "type": "bytes32"},
          {"name": "schema", "type": "bytes32"},
          {"name": "time", "type": "uint64"},
          {"name": "expirationTime", "type": "uint64"},
          {"name": "revocationTime", "type": "uint64"},
          {"name": "refUID", "type": "bytes32"},
          {"name": "recipient", "type": "address"},
          {"name": "attester", "type": "address"},
          {"name": "revocable", "type": "bool"},
          {"name": "data", "type": "bytes"}
        ]
      }
    ]
  },
  {
    "type": "function",
    "name": "attestByDelegation",
    "stateMutability": "payable",
    "inputs": [
      {
        "name": "delegatedRequest",
        "type": "tuple",
        "components": [
          {"name": "schema", "type": "bytes32"},
          {
            "name": "data",
            "type": "tuple",
            "components": [
              {"name": "recipient", "type": "address"},
              {"name": "expirationTime", "type": "uint64"},
              {"name": "revocable", "type": "bool"},
              {"name": "refUID", "type": "bytes32"},
              {"name": "data", "type": "bytes"},
              {"name": "value", "type": "uint256"}
            ]
          },
          {
            "name": "signature",
            "type": "tuple",
            "components": [
              {"name": "v", "type": "uint8"},
              {"name": "r", "type": "bytes32"},
              {"name": "s", "type": "bytes32"}
            ]
          },
          {"name": "attester", "type": "address"},
          {"name": "deadline", "type": "uint64"}
        ]
      }
    ],
    "outputs": [{"name": "", "type": "bytes32"}]
  },
  {
    "type": "function",
    "name": "revokeByDelegation",
    "stateMutability": "payable",
    "inputs": [
      {
        "name": "delegatedRequest",
        "type": "tuple",
        "components": [
          {"name": "schema", "type": "bytes32"},
          {
            "name": "data",
            "type": "tuple",
            "components": [
              {"name": "uid", "type": "bytes32"},
              {"name": "value", "type": "uint256"}
            ]
          },
          {
            "name": "signature",
            "type": "tuple",
            "components": [
              {"name": "v", "type": "uint8"},
              {"name": "r", "type": "bytes32"},
              {"name": "s", "type": "bytes32"}
            ]
          },
          {"name": "revoker", "type": "address"},
          {"name": "deadline", "type": "uint64"}
        ]
      }
    ],
    "outputs": []
  },
  {
    "type": "event",
    "name": "Attested",
    "inputs": [
      {"name": "recipient", "type": "address", "indexed": true},
      {"name": "attester", "type": "address", "indexed": true},
      {"name": "uid", "type": "bytes32", "indexed": false},
      {"name": "schemaUID", "type": "bytes32", "indexed": true}
    ]
  },
  {
    "type": "event",
    "name": "Revoked",
    "inputs": [
      {"name": "recipient", "type": "address", "indexed": true},
      {"name": "attester", "type": "address", "indexed": true},
      {"name": "uid", "type": "bytes32", "indexed": false},
      {"name": "schemaUID", "type": "bytes32", "indexed": true}
    ]
  }
]`

// RegistryABI is shared by the relay submitter and the log indexer.
var RegistryABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(registryABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// OnchainAttestation mirrors the registry's attestation record.
type OnchainAttestation struct {
	Uid            [32]byte
	Schema         [32]byte
	Time           uint64
	ExpirationTime uint64
	RevocationTime uint64
	RefUID         [32]byte
	Recipient      common.Address
	Attester       common.Address
	Revocable      bool
	Data           []byte
}

// Exists reports whether the registry holds a record for the UID.
func (a *OnchainAttestation) Exists() bool {
	return a != nil && a.Uid != [32]byte{}
}

// IsRevoked reports instance-level revocation on chain.
func (a *OnchainAttestation) IsRevoked() bool {
	return a != nil && a.RevocationTime > 0
}

type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Registry reads attestation state from the on-chain registry.
type Registry struct {
	caller ContractCaller
	addr   common.Address
}

func NewRegistry(caller ContractCaller, addr common.Address) *Registry {
	return &Registry{caller: caller, addr: addr}
}

func (r *Registry) Address() common.Address { return r.addr }

func (r *Registry) GetAttestation(ctx context.Context, uid common.Hash) (*OnchainAttestation, error) {
	input, err := RegistryABI.Pack("getAttestation", [32]byte(uid))
	if err != nil {
		return nil, fmt.Errorf("pack getAttestation: %w", err)
	}
	ret, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.addr, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call getAttestation: %w", err)
	}
	out, err := RegistryABI.Unpack("getAttestation", ret)
	if err != nil {
		return nil, fmt.Errorf("unpack getAttestation: %w", err)
	}
	att := abi.ConvertType(out[0], new(OnchainAttestation)).(*OnchainAttestation)
	return att, nil
}
