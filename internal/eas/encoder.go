package eas

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/p2e-inferno/teerex-sub003/internal/apperr"
)

// Field is one "type name" pair of a schema definition.
type Field struct {
	Type string
	Name string
}

// ParseDefinition splits a comma-separated schema definition into its
// fields. Malformed definitions are encoding errors.
func ParseDefinition(definition string) ([]Field, error) {
	parts := strings.Split(definition, ",")
	fields := make([]Field, 0, len(parts))
	for _, part := range parts {
		tokens := strings.Fields(strings.TrimSpace(part))
		if len(tokens) != 2 {
			return nil, apperr.New(apperr.Encoding, fmt.Sprintf("malformed schema field %q", part))
		}
		fields = append(fields, Field{Type: tokens[0], Name: tokens[1]})
	}
	if len(fields) == 0 {
		return nil, apperr.New(apperr.Encoding, "empty schema definition")
	}
	return fields, nil
}

// Payload is the loosely-typed data bag an attestation is built from.
type Payload map[string]any

type resolveContext struct {
	payload   Payload
	recipient common.Address
	now       time.Time
}

// fieldResolvers maps well-known field names to value resolvers, so
// adding a field is a table entry rather than new control flow.
var fieldResolvers = map[string]func(rc resolveContext) any{
	"eventId":        func(rc resolveContext) any { return rc.payload["eventId"] },
	"lockAddress":    func(rc resolveContext) any { return rc.payload["lockAddress"] },
	"eventTitle":     func(rc resolveContext) any { return rc.payload["eventTitle"] },
	"location":       func(rc resolveContext) any { return rc.payload["location"] },
	"platform":       func(rc resolveContext) any { return rc.payload["platform"] },
	"rating":         func(rc resolveContext) any { return rc.payload["rating"] },
	"review":         func(rc resolveContext) any { return rc.payload["review"] },
	"tokenId":        func(rc resolveContext) any { return rc.payload["tokenId"] },
	"price":          func(rc resolveContext) any { return rc.payload["price"] },
	"expirationTime": func(rc resolveContext) any { return rc.payload["expirationTime"] },
	"timestamp": func(rc resolveContext) any {
		if v, ok := rc.payload["timestamp"]; ok {
			return v
		}
		return rc.now.Unix()
	},
	"attendee":     resolveRecipient,
	"declarer":     resolveRecipient,
	"ticketHolder": resolveRecipient,
	"recipient":    resolveRecipient,
}

func resolveRecipient(rc resolveContext) any {
	return rc.recipient
}

type Encoder struct{}

func NewEncoder() *Encoder { return &Encoder{} }

// Encode serializes payload against definition into the byte layout the
// registry's attest call consumes. It fails before any signature is
// requested: every error it returns is tagged apperr.Encoding.
func (e *Encoder) Encode(definition string, payload Payload, recipient common.Address, now time.Time) ([]byte, error) {
	fields, err := ParseDefinition(definition)
	if err != nil {
		return nil, err
	}
	args, err := buildArguments(fields)
	if err != nil {
		return nil, err
	}
	rc := resolveContext{payload: payload, recipient: recipient, now: now}
	values := make([]any, 0, len(fields))
	for i, field := range fields {
		raw := resolveFieldValue(field, rc)
		coerced, err := coerceValue(raw, args[i].Type, field)
		if err != nil {
			return nil, err
		}
		values = append(values, coerced)
	}
	packed, err := args.Pack(values...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Encoding, "abi pack failed", err)
	}
	return packed, nil
}

// Decode unpacks data encoded against definition back into a map keyed
// by field name.
func (e *Encoder) Decode(definition string, data []byte) (map[string]any, error) {
	fields, err := ParseDefinition(definition)
	if err != nil {
		return nil, err
	}
	args, err := buildArguments(fields)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(fields))
	if err := args.UnpackIntoMap(out, data); err != nil {
		return nil, apperr.Wrap(apperr.Encoding, "abi unpack failed", err)
	}
	return out, nil
}

func buildArguments(fields []Field) (abi.Arguments, error) {
	args := make(abi.Arguments, 0, len(fields))
	for _, field := range fields {
		typ, err := abi.NewType(field.Type, "", nil)
		if err != nil {
			return nil, apperr.Wrap(apperr.Encoding, fmt.Sprintf("unsupported field type %q", field.Type), err)
		}
		args = append(args, abi.Argument{Name: field.Name, Type: typ})
	}
	return args, nil
}

func resolveFieldValue(field Field, rc resolveContext) any {
	if resolver, ok := fieldResolvers[field.Name]; ok {
		return resolver(rc)
	}
	if v, ok := rc.payload[field.Name]; ok {
		return v
	}
	return nil
}

func coerceValue(raw any, typ abi.Type, field Field) (any, error) {
	switch typ.T {
	case abi.StringTy:
		if raw == nil {
			return "", nil
		}
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", raw), nil
	case abi.AddressTy:
		return coerceAddress(raw)
	case abi.BoolTy:
		b, _ := raw.(bool)
		return b, nil
	case abi.UintTy:
		n, err := coerceBigInt(raw, field)
		if err != nil {
			return nil, err
		}
		if n.Sign() < 0 {
			return nil, apperr.New(apperr.Encoding, fmt.Sprintf("negative value %s for uint field %s", n, field.Name))
		}
		if n.BitLen() > typ.Size {
			return nil, apperr.New(apperr.Encoding, fmt.Sprintf("value %s overflows uint%d for %s", n, typ.Size, field.Name))
		}
		switch typ.Size {
		case 8:
			return uint8(n.Uint64()), nil
		case 16:
			return uint16(n.Uint64()), nil
		case 32:
			return uint32(n.Uint64()), nil
		case 64:
			return n.Uint64(), nil
		default:
			return n, nil
		}
	case abi.FixedBytesTy:
		if typ.Size != 32 {
			return nil, apperr.New(apperr.Encoding, fmt.Sprintf("unsupported fixed bytes size for %s", field.Name))
		}
		return coerceHash(raw)
	case abi.BytesTy:
		if raw == nil {
			return []byte{}, nil
		}
		switch v := raw.(type) {
		case []byte:
			return v, nil
		case string:
			if strings.HasPrefix(v, "0x") {
				return common.FromHex(v), nil
			}
			return []byte(v), nil
		}
		return nil, apperr.New(apperr.Encoding, fmt.Sprintf("cannot coerce %T into bytes for %s", raw, field.Name))
	default:
		return nil, apperr.New(apperr.Encoding, fmt.Sprintf("unsupported field type %q", field.Type))
	}
}

func coerceAddress(raw any) (common.Address, error) {
	switch v := raw.(type) {
	case nil:
		return common.Address{}, nil
	case common.Address:
		return v, nil
	case string:
		if v == "" {
			return common.Address{}, nil
		}
		if !common.IsHexAddress(v) {
			return common.Address{}, apperr.New(apperr.Encoding, fmt.Sprintf("invalid address value %q", v))
		}
		return common.HexToAddress(v), nil
	default:
		return common.Address{}, apperr.New(apperr.Encoding, fmt.Sprintf("cannot coerce %T into address", raw))
	}
}

func coerceHash(raw any) ([32]byte, error) {
	switch v := raw.(type) {
	case nil:
		return [32]byte{}, nil
	case [32]byte:
		return v, nil
	case common.Hash:
		return v, nil
	case string:
		if v == "" {
			return [32]byte{}, nil
		}
		if !IsValidUID(v) {
			return [32]byte{}, apperr.New(apperr.Encoding, fmt.Sprintf("invalid bytes32 value %q", v))
		}
		return common.HexToHash(v), nil
	default:
		return [32]byte{}, apperr.New(apperr.Encoding, fmt.Sprintf("cannot coerce %T into bytes32", raw))
	}
}

func coerceBigInt(raw any, field Field) (*big.Int, error) {
	switch v := raw.(type) {
	case nil:
		return big.NewInt(0), nil
	case *big.Int:
		return v, nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case float64:
		// JSON numbers arrive as float64.
		return big.NewInt(int64(v)), nil
	case string:
		if v == "" {
			return big.NewInt(0), nil
		}
		n, ok := new(big.Int).SetString(strings.TrimPrefix(v, "0x"), base(v))
		if !ok {
			return nil, apperr.New(apperr.Encoding, fmt.Sprintf("invalid numeric value %q for %s", v, field.Name))
		}
		return n, nil
	default:
		return nil, apperr.New(apperr.Encoding, fmt.Sprintf("cannot coerce %T into %s for %s", raw, field.Type, field.Name))
	}
}

func base(s string) int {
	if strings.HasPrefix(s, "0x") {
		return 16
	}
	return 10
}
