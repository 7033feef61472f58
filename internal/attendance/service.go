package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/p2e-inferno/teerex-sub003/internal/apperr"
	"github.com/p2e-inferno/teerex-sub003/internal/config"
	"github.com/p2e-inferno/teerex-sub003/internal/eas"
	"github.com/p2e-inferno/teerex-sub003/internal/relay"
	"github.com/p2e-inferno/teerex-sub003/internal/reputation"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

// eventDuration is how long an event is considered live after its
// start time. Attendance opens only once this window has passed.
const eventDuration = 2 * time.Hour

// Revoke gating reason codes. Each gate has its own code and they are
// never substituted for one another.
const (
	ReasonSchemaIrrevocable   = "schema does not allow revocation"
	ReasonInstanceIrrevocable = "attestation is permanent on-chain"
	ReasonNotPermitted        = "caller is not permitted to revoke"
	ReasonUnavailable         = "attestation state unavailable"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrEventStarted    = errors.New("event already started")
	ErrEventNotEnded   = errors.New("event has not ended yet")
	ErrAlreadyActive   = errors.New("an active attestation already exists")
	ErrNothingToRevoke = errors.New("no active attestation to revoke")
	ErrNotAllowListed  = errors.New("address is not on the event allow list")
)

// ChainReader answers instance-level revocability questions against
// the attestation registry.
type ChainReader interface {
	GetAttestation(ctx context.Context, uid common.Hash) (*eas.OnchainAttestation, error)
}

// Relayer submits signed delegated requests with the service wallet.
type Relayer interface {
	AttestByDelegation(ctx context.Context, req relay.AttestByDelegationRequest) (*relay.Result, error)
	RevokeByDelegation(ctx context.Context, req relay.RevokeByDelegationRequest) (*relay.Result, error)
}

// RevokeGate is the outcome of the three revocation gates for one
// attestation slot. When Allowed is false, Reason carries exactly one
// of the gate-specific reason codes.
type RevokeGate struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// State is the reconciled view of a (event, user) pair: the database
// rows cross-checked against the registry contract.
type State struct {
	EventID            string     `json:"eventId"`
	EventStarted       bool       `json:"eventStarted"`
	EventEnded         bool       `json:"eventEnded"`
	UserGoingStatus    bool       `json:"userGoingStatus"`
	UserAttendedStatus bool       `json:"userAttendedStatus"`
	MyGoingUID         string     `json:"myGoingUid,omitempty"`
	MyAttendanceUID    string     `json:"myAttendanceUid,omitempty"`
	GoingCount         int64      `json:"goingCount"`
	AttendedCount      int64      `json:"attendedCount"`
	RevokeGoing        RevokeGate `json:"revokeGoing"`
	RevokeAttendance   RevokeGate `json:"revokeAttendance"`
}

type Service struct {
	repo     *store.Repository
	resolver *eas.SchemaResolver
	encoder  *eas.Encoder
	signer   eas.Signer
	relayer  Relayer
	chain    ChainReader
	ledger   *reputation.Ledger
	chainID  uint64
	sigTTL   time.Duration
	logger   *log.Logger
	now      func() time.Time
}

func NewService(
	repo *store.Repository,
	resolver *eas.SchemaResolver,
	encoder *eas.Encoder,
	signer eas.Signer,
	relayer Relayer,
	chain ChainReader,
	ledger *reputation.Ledger,
	chainCfg config.ChainConfig,
	relayCfg config.RelayConfig,
	logger *log.Logger,
) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		encoder:  encoder,
		signer:   signer,
		relayer:  relayer,
		chain:    chain,
		ledger:   ledger,
		chainID:  chainCfg.ChainID,
		sigTTL:   relayCfg.SignatureTTL,
		logger:   logger,
		now:      time.Now,
	}
}

func eventStarted(ev *store.Event, now time.Time) bool {
	return now.After(ev.StartsAt)
}

func eventEnded(ev *store.Event, now time.Time) bool {
	return now.After(ev.StartsAt.Add(eventDuration))
}

// State reconciles database rows with on-chain revocability for the
// given user. The two candidate UIDs are checked against the registry
// concurrently. A row whose UID fails format validation is treated as
// absent. When the database and the chain disagree, or the chain
// cannot be read, the affected revoke action is disabled rather than
// guessed at.
func (s *Service) State(ctx context.Context, eventID, user string, permitRevoke bool) (*State, error) {
	ev, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, ErrEventNotFound
	}

	now := s.now()
	st := &State{
		EventID:      ev.ID,
		EventStarted: eventStarted(ev, now),
		EventEnded:   eventEnded(ev, now),
	}
	user = store.NormalizeAddress(user)

	going, err := s.resolver.Resolve(ctx, store.SchemaGoing)
	if err != nil {
		return nil, err
	}
	att, err := s.resolver.Resolve(ctx, store.SchemaAttendance)
	if err != nil {
		return nil, err
	}

	type slot struct {
		schema *eas.Schema
		row    *store.Attestation
		gate   RevokeGate
		count  int64
	}
	slots := []*slot{{schema: going}, {schema: att}}

	g, gctx := errgroup.WithContext(ctx)
	for _, sl := range slots {
		sl := sl
		if sl.schema == nil {
			sl.gate = RevokeGate{Allowed: false, Reason: ReasonUnavailable}
			continue
		}
		g.Go(func() error {
			uid := sl.schema.UID.Hex()
			row, err := s.repo.LatestActiveAttestation(gctx, eventID, uid, user)
			if err != nil {
				return err
			}
			count, err := s.repo.CountActiveAttestations(gctx, eventID, uid)
			if err != nil {
				return err
			}
			sl.count = count
			if row == nil || !eas.IsValidUID(row.UID) {
				sl.row = nil
				sl.gate = RevokeGate{Allowed: false, Reason: ReasonUnavailable}
				return nil
			}
			sl.row = row
			sl.gate = s.revokeGate(gctx, sl.schema, row, user, permitRevoke)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if goingSlot := slots[0]; goingSlot.row != nil {
		st.UserGoingStatus = true
		st.MyGoingUID = goingSlot.row.UID
	}
	if attSlot := slots[1]; attSlot.row != nil {
		st.UserAttendedStatus = true
		st.MyAttendanceUID = attSlot.row.UID
	}
	st.GoingCount = slots[0].count
	st.AttendedCount = slots[1].count
	st.RevokeGoing = slots[0].gate
	st.RevokeAttendance = slots[1].gate
	return st, nil
}

// revokeGate evaluates the three independent revocation gates for one
// database row: the schema's static revocable flag, the instance's
// on-chain revocability, and the caller's permission. The first gate
// that forbids wins and its reason code is reported unchanged.
func (s *Service) revokeGate(ctx context.Context, schema *eas.Schema, row *store.Attestation, caller string, permitRevoke bool) RevokeGate {
	if !schema.Revocable {
		return RevokeGate{Allowed: false, Reason: ReasonSchemaIrrevocable}
	}

	onchain, err := s.chain.GetAttestation(ctx, common.HexToHash(row.UID))
	if err != nil {
		s.logger.Printf("registry lookup failed for %s: %v", row.UID, err)
		return RevokeGate{Allowed: false, Reason: ReasonUnavailable}
	}
	if !onchain.Exists() || onchain.IsRevoked() {
		// The database believes this row is active but the chain
		// disagrees. Disable rather than guess.
		return RevokeGate{Allowed: false, Reason: ReasonUnavailable}
	}
	if !onchain.Revocable {
		return RevokeGate{Allowed: false, Reason: ReasonInstanceIrrevocable}
	}

	caller = store.NormalizeAddress(caller)
	isParty := caller == store.NormalizeAddress(row.Recipient) ||
		caller == store.NormalizeAddress(row.Attester)
	if !permitRevoke || !isParty {
		return RevokeGate{Allowed: false, Reason: ReasonNotPermitted}
	}
	return RevokeGate{Allowed: true}
}

// DeclareGoing creates a going attestation for the user. The event
// must not have started yet and the user may hold at most one active
// going attestation per event.
func (s *Service) DeclareGoing(ctx context.Context, eventID, user string) (*relay.Result, error) {
	ev, schema, err := s.prepare(ctx, eventID, user, store.SchemaGoing)
	if err != nil {
		return nil, err
	}
	if eventStarted(ev, s.now()) {
		return nil, ErrEventStarted
	}
	return s.attest(ctx, ev, schema, user)
}

// ConfirmAttendance creates an attendance attestation once the event
// window has passed, then applies the attendance reputation bonus
// asynchronously. A ledger failure never undoes the attestation.
func (s *Service) ConfirmAttendance(ctx context.Context, eventID, user string) (*relay.Result, error) {
	ev, schema, err := s.prepare(ctx, eventID, user, store.SchemaAttendance)
	if err != nil {
		return nil, err
	}
	if !eventEnded(ev, s.now()) {
		return nil, ErrEventNotEnded
	}
	res, err := s.attest(ctx, ev, schema, user)
	if err != nil {
		return nil, err
	}
	// The bonus requires a confirmed attestation: ok with a usable UID.
	if res != nil && res.OK && eas.IsValidUID(res.UID) {
		s.ledger.ApplyAsync(user, reputation.EventAttendance)
	}
	return res, nil
}

// Revoke revokes the user's active attestation in the named schema
// slot, subject to the same three gates the state reconciler reports.
func (s *Service) Revoke(ctx context.Context, eventID, user, schemaName string, permitRevoke bool) (*relay.Result, error) {
	schema, err := s.resolver.Resolve(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return nil, apperr.New(apperr.Configuration, fmt.Sprintf("schema %q is not configured", schemaName))
	}

	user = store.NormalizeAddress(user)
	row, err := s.repo.LatestActiveAttestation(ctx, eventID, schema.UID.Hex(), user)
	if err != nil {
		return nil, err
	}
	if row == nil || !eas.IsValidUID(row.UID) {
		return nil, ErrNothingToRevoke
	}
	if gate := s.revokeGate(ctx, schema, row, user, permitRevoke); !gate.Allowed {
		return nil, apperr.New(apperr.Reconciliation, gate.Reason)
	}

	req := eas.DelegatedRevoke{
		SchemaUID: schema.UID,
		UID:       common.HexToHash(row.UID),
		Deadline:  eas.DeadlineIn(s.sigTTL),
	}
	sig, err := s.signer.SignRevoke(req)
	if err != nil {
		return nil, err
	}
	return s.relayer.RevokeByDelegation(ctx, relay.RevokeByDelegationRequest{
		ChainID:   s.chainID,
		SchemaUID: schema.UID.Hex(),
		UID:       row.UID,
		Revoker:   s.signer.Address().Hex(),
		Deadline:  req.Deadline,
		Signature: hexutil.Encode(sig),
	})
}

// prepare runs the checks every attestation flow shares: the event
// exists, the allow list admits the user when the event is gated, the
// schema is configured, and the slot is empty.
func (s *Service) prepare(ctx context.Context, eventID, user, schemaName string) (*store.Event, *eas.Schema, error) {
	ev, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if ev == nil {
		return nil, nil, ErrEventNotFound
	}

	user = store.NormalizeAddress(user)
	if ev.Gated {
		ok, err := s.repo.IsAllowListed(ctx, ev.ID, user)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, ErrNotAllowListed
		}
	}

	schema, err := s.resolver.Resolve(ctx, schemaName)
	if err != nil {
		return nil, nil, err
	}
	if schema == nil {
		return nil, nil, apperr.New(apperr.Configuration, fmt.Sprintf("schema %q is not configured", schemaName))
	}

	existing, err := s.repo.LatestActiveAttestation(ctx, ev.ID, schema.UID.Hex(), user)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil && eas.IsValidUID(existing.UID) {
		return nil, nil, ErrAlreadyActive
	}
	return ev, schema, nil
}

// attest encodes the schema payload, signs the delegated request with
// the service signer and hands it to the relay. The steps run in
// strict sequence so a failure at any point leaves no partial state.
func (s *Service) attest(ctx context.Context, ev *store.Event, schema *eas.Schema, user string) (*relay.Result, error) {
	recipient := common.HexToAddress(user)
	payload := eas.Payload{
		"eventId":     ev.ID,
		"eventTitle":  ev.Title,
		"lockAddress": ev.LockAddress,
		"location":    ev.Location,
		"platform":    ev.Platform,
	}

	data, err := s.encoder.Encode(schema.Definition, payload, recipient, s.now())
	if err != nil {
		return nil, err
	}

	req := eas.DelegatedAttest{
		SchemaUID: schema.UID,
		Recipient: recipient,
		Revocable: schema.Revocable,
		RefUID:    eas.ZeroUID,
		Data:      data,
		Deadline:  eas.DeadlineIn(s.sigTTL),
	}
	sig, err := s.signer.SignAttest(req)
	if err != nil {
		return nil, err
	}

	return s.relayer.AttestByDelegation(ctx, relay.AttestByDelegationRequest{
		EventID:        ev.ID,
		ChainID:        s.chainID,
		SchemaUID:      schema.UID.Hex(),
		Attester:       s.signer.Address().Hex(),
		Recipient:      recipient.Hex(),
		Data:           hexutil.Encode(data),
		Payload:        payload,
		ExpirationTime: req.ExpirationTime,
		Revocable:      req.Revocable,
		RefUID:         eas.ZeroUID.Hex(),
		Deadline:       req.Deadline,
		Signature:      hexutil.Encode(sig),
	})
}
