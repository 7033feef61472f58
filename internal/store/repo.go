package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *DB) *Repository { return &Repository{db: db.DB} }

// --- events ---

func (r *Repository) CreateEvent(ctx context.Context, ev *Event) error {
	ev.LockAddress = NormalizeAddress(ev.LockAddress)
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *Repository) GetEvent(ctx context.Context, id string) (*Event, error) {
	var ev Event
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&ev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func (r *Repository) SaveEvent(ctx context.Context, ev *Event) error {
	ev.LockAddress = NormalizeAddress(ev.LockAddress)
	return r.db.WithContext(ctx).Save(ev).Error
}

func (r *Repository) ListEvents(ctx context.Context) ([]Event, error) {
	var out []Event
	err := r.db.WithContext(ctx).Order("starts_at desc").Find(&out).Error
	return out, err
}

// --- schemas ---

func (r *Repository) GetSchemaByName(ctx context.Context, name string) (*AttestationSchema, error) {
	var schema AttestationSchema
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&schema).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &schema, nil
}

func (r *Repository) GetSchemaByUID(ctx context.Context, uid string) (*AttestationSchema, error) {
	var schema AttestationSchema
	err := r.db.WithContext(ctx).Where("uid = ?", NormalizeAddress(uid)).First(&schema).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &schema, nil
}

func (r *Repository) UpsertSchema(ctx context.Context, schema *AttestationSchema) error {
	schema.UID = NormalizeAddress(schema.UID)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"uid":        schema.UID,
			"definition": schema.Definition,
			"revocable":  schema.Revocable,
			"category":   schema.Category,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(schema).Error
}

// --- attestations ---

func (r *Repository) UpsertAttestation(ctx context.Context, att *Attestation) error {
	att.UID = NormalizeAddress(att.UID)
	att.SchemaUID = NormalizeAddress(att.SchemaUID)
	att.Attester = NormalizeAddress(att.Attester)
	att.Recipient = NormalizeAddress(att.Recipient)
	att.TxHash = NormalizeAddress(att.TxHash)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "uid"}},
		DoUpdates: clause.Assignments(map[string]any{
			"tx_hash":      att.TxHash,
			"block_number": att.BlockNumber,
			"updated_at":   gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(att).Error
}

func (r *Repository) GetAttestationByUID(ctx context.Context, uid string) (*Attestation, error) {
	var att Attestation
	err := r.db.WithContext(ctx).Where("uid = ?", NormalizeAddress(uid)).First(&att).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &att, nil
}

// LatestActiveAttestation is the single accessor for the per-slot
// "latest row wins" derivation: most recent non-revoked attestation for
// (event, schema, recipient), ORDER BY created_at DESC LIMIT 1.
func (r *Repository) LatestActiveAttestation(ctx context.Context, eventID, schemaUID, recipient string) (*Attestation, error) {
	var att Attestation
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND schema_uid = ? AND recipient = ? AND is_revoked = ?",
			eventID, NormalizeAddress(schemaUID), NormalizeAddress(recipient), false).
		Order("created_at DESC").
		Limit(1).
		First(&att).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &att, nil
}

func (r *Repository) MarkAttestationRevoked(ctx context.Context, uid string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&Attestation{}).
		Where("uid = ? AND is_revoked = ?", NormalizeAddress(uid), false).
		Updates(map[string]any{
			"is_revoked":      true,
			"revocation_time": at,
			"updated_at":      gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokePreviousActive flips any still-active rows in the same slot
// except uid, so a slot can never hold two active attestations.
func (r *Repository) RevokePreviousActive(ctx context.Context, eventID, schemaUID, recipient, exceptUID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Attestation{}).
		Where("event_id = ? AND schema_uid = ? AND recipient = ? AND is_revoked = ? AND uid <> ?",
			eventID, NormalizeAddress(schemaUID), NormalizeAddress(recipient), false, NormalizeAddress(exceptUID)).
		Updates(map[string]any{
			"is_revoked":      true,
			"revocation_time": at,
			"updated_at":      gorm.Expr("CURRENT_TIMESTAMP"),
		}).Error
}

func (r *Repository) CountActiveAttestations(ctx context.Context, eventID, schemaUID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Attestation{}).
		Where("event_id = ? AND schema_uid = ? AND is_revoked = ?", eventID, NormalizeAddress(schemaUID), false).
		Count(&count).Error
	return count, err
}

func (r *Repository) ListAttestationsByEvent(ctx context.Context, eventID string, schemaUID string) ([]Attestation, error) {
	var out []Attestation
	query := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("created_at desc")
	if schemaUID != "" {
		query = query.Where("schema_uid = ?", NormalizeAddress(schemaUID))
	}
	err := query.Find(&out).Error
	return out, err
}

// --- challenges ---

func (r *Repository) CreateChallenge(ctx context.Context, ch *Challenge) error {
	ch.AttestationUID = NormalizeAddress(ch.AttestationUID)
	ch.Challenger = NormalizeAddress(ch.Challenger)
	ch.Challenged = NormalizeAddress(ch.Challenged)
	return r.db.WithContext(ctx).Create(ch).Error
}

func (r *Repository) ListChallengesByAttestation(ctx context.Context, attestationUID string) ([]Challenge, error) {
	var out []Challenge
	err := r.db.WithContext(ctx).
		Where("attestation_uid = ?", NormalizeAddress(attestationUID)).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// --- votes ---

// InsertVote inserts unless the (attestation, voter) pair already
// voted; a duplicate reports inserted=false with no error.
func (r *Repository) InsertVote(ctx context.Context, v *Vote) (bool, error) {
	v.AttestationUID = NormalizeAddress(v.AttestationUID)
	v.Voter = NormalizeAddress(v.Voter)
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attestation_uid"}, {Name: "voter"}},
		DoNothing: true,
	}).Create(v)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) ListVotesByAttestation(ctx context.Context, attestationUID string) ([]Vote, error) {
	var out []Vote
	err := r.db.WithContext(ctx).
		Where("attestation_uid = ?", NormalizeAddress(attestationUID)).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// --- reputation ---

func (r *Repository) LatestReputation(ctx context.Context, address string) (*ReputationScore, error) {
	var row ReputationScore
	err := r.db.WithContext(ctx).
		Where("user_address = ?", NormalizeAddress(address)).
		Order("updated_at DESC, id DESC").
		Limit(1).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *Repository) AppendReputation(ctx context.Context, row *ReputationScore) error {
	row.UserAddress = NormalizeAddress(row.UserAddress)
	return r.db.WithContext(ctx).Create(row).Error
}

// --- allow list ---

func (r *Repository) UpsertAllowListEntry(ctx context.Context, entry *AllowListEntry) error {
	entry.Address = NormalizeAddress(entry.Address)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "address"}},
		DoNothing: true,
	}).Create(entry).Error
}

func (r *Repository) DeleteAllowListEntry(ctx context.Context, eventID, address string) error {
	res := r.db.WithContext(ctx).
		Where("event_id = ? AND address = ?", eventID, NormalizeAddress(address)).
		Delete(&AllowListEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListAllowListEntries(ctx context.Context, eventID string) ([]AllowListEntry, error) {
	var out []AllowListEntry
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("id desc").Find(&out).Error
	return out, err
}

func (r *Repository) IsAllowListed(ctx context.Context, eventID, address string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&AllowListEntry{}).
		Where("event_id = ? AND address = ?", eventID, NormalizeAddress(address)).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) CreateAllowListRequest(ctx context.Context, req *AllowListRequest) error {
	req.Address = NormalizeAddress(req.Address)
	req.Status = AllowListRequestPending
	var count int64
	if err := r.db.WithContext(ctx).Model(&AllowListRequest{}).
		Where("event_id = ? AND address = ?", req.EventID, req.Address).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrConflict
	}
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *Repository) GetAllowListRequest(ctx context.Context, id uint) (*AllowListRequest, error) {
	var req AllowListRequest
	err := r.db.WithContext(ctx).First(&req, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *Repository) SetAllowListRequestStatus(ctx context.Context, id uint, status string) error {
	res := r.db.WithContext(ctx).Model(&AllowListRequest{}).
		Where("id = ? AND status = ?", id, AllowListRequestPending).
		Updates(map[string]any{
			"status":     status,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListAllowListRequests(ctx context.Context, eventID, status string) ([]AllowListRequest, error) {
	var out []AllowListRequest
	query := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("id desc")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Find(&out).Error
	return out, err
}

// --- organizers ---

func (r *Repository) GetOrganizerByAddress(ctx context.Context, address string) (*Organizer, error) {
	var org Organizer
	err := r.db.WithContext(ctx).Where("address = ?", NormalizeAddress(address)).First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

// --- log cursor ---

func (r *Repository) GetLogCursor(ctx context.Context, chainID uint64, address string) (*LogCursor, error) {
	var cursor LogCursor
	err := r.db.WithContext(ctx).
		Where("chain_id = ? AND address = ?", chainID, NormalizeAddress(address)).
		First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cursor, nil
}

func (r *Repository) UpsertLogCursor(ctx context.Context, cursor *LogCursor) error {
	cursor.Address = NormalizeAddress(cursor.Address)
	cursor.LastTxHash = NormalizeAddress(cursor.LastTxHash)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chain_id"}, {Name: "address"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_block":     cursor.LastBlock,
			"last_tx_hash":   cursor.LastTxHash,
			"last_log_index": cursor.LastLogIndex,
			"updated_at":     gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(cursor).Error
}
