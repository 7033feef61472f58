package store

import "time"

type Organizer struct {
	ID        uint      `gorm:"primaryKey"`
	Address   string    `gorm:"size:66;uniqueIndex"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

type Event struct {
	ID          string `gorm:"primaryKey;size:36"`
	Title       string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`
	LockAddress string `gorm:"size:66;index"`
	ChainID     uint64 `gorm:"index"`
	StartsAt    time.Time
	Location    string `gorm:"size:255"`
	Platform    string `gorm:"size:64"`
	Gated       bool
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

type AttestationSchema struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"size:64;uniqueIndex"`
	UID        string `gorm:"size:66;uniqueIndex"`
	Definition string `gorm:"type:text;not null"`
	Revocable  bool
	Category   string    `gorm:"size:64"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

type Attestation struct {
	ID             uint   `gorm:"primaryKey"`
	UID            string `gorm:"size:66;uniqueIndex"`
	SchemaUID      string `gorm:"size:66;index:idx_att_slot"`
	EventID        string `gorm:"size:36;index:idx_att_slot"`
	Attester       string `gorm:"size:66;index"`
	Recipient      string `gorm:"size:66;index:idx_att_slot"`
	Data           string `gorm:"type:text"`
	Payload        string `gorm:"type:text"`
	TxHash         string `gorm:"size:66"`
	BlockNumber    uint64
	IsRevoked      bool `gorm:"index"`
	RevocationTime *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

type Challenge struct {
	ID                  uint      `gorm:"primaryKey"`
	AttestationUID      string    `gorm:"size:66;index"`
	Challenger          string    `gorm:"size:66;index"`
	Challenged          string    `gorm:"size:66"`
	Reason              string    `gorm:"type:text;not null"`
	EvidenceDescription string    `gorm:"type:text"`
	EvidenceURL         string    `gorm:"size:255"`
	StakeAmount         string    `gorm:"size:78"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
}

type Vote struct {
	ID             uint      `gorm:"primaryKey"`
	AttestationUID string    `gorm:"size:66;uniqueIndex:idx_vote_once"`
	Voter          string    `gorm:"size:66;uniqueIndex:idx_vote_once"`
	VoteType       string    `gorm:"size:16;not null"`
	Weight         int       `gorm:"not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

// ReputationScore rows are append-only; the latest updated_at row per
// address is the current score.
type ReputationScore struct {
	ID                uint   `gorm:"primaryKey"`
	UserAddress       string `gorm:"size:66;index"`
	Score             int
	TotalAttestations int
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

type AllowListEntry struct {
	ID        uint      `gorm:"primaryKey"`
	EventID   string    `gorm:"size:36;uniqueIndex:idx_allow_entry"`
	Address   string    `gorm:"size:66;uniqueIndex:idx_allow_entry"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

const (
	AllowListRequestPending  = "pending"
	AllowListRequestApproved = "approved"
	AllowListRequestRejected = "rejected"
)

type AllowListRequest struct {
	ID        uint      `gorm:"primaryKey"`
	EventID   string    `gorm:"size:36;uniqueIndex:idx_allow_req"`
	Address   string    `gorm:"size:66;uniqueIndex:idx_allow_req"`
	Status    string    `gorm:"size:16;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

type LogCursor struct {
	ID           uint   `gorm:"primaryKey"`
	ChainID      uint64 `gorm:"uniqueIndex:idx_log_cursor"`
	Address      string `gorm:"size:66;uniqueIndex:idx_log_cursor"`
	LastBlock    uint64
	LastTxHash   string `gorm:"size:66"`
	LastLogIndex uint
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}
