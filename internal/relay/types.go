package relay

// AttestByDelegationRequest is the wire payload of the relay endpoints:
// a client-signed delegated attestation the service wallet submits and
// pays gas for.
type AttestByDelegationRequest struct {
	EventID        string         `json:"eventId" binding:"required"`
	ChainID        uint64         `json:"chainId"`
	SchemaUID      string         `json:"schemaUid" binding:"required"`
	Attester       string         `json:"attester" binding:"required"`
	Recipient      string         `json:"recipient" binding:"required"`
	Data           string         `json:"data" binding:"required"`
	Payload        map[string]any `json:"payload"`
	ExpirationTime uint64         `json:"expirationTime"`
	Revocable      bool           `json:"revocable"`
	RefUID         string         `json:"refUid"`
	Deadline       uint64         `json:"deadline" binding:"required"`
	Signature      string         `json:"signature" binding:"required"`
}

type RevokeByDelegationRequest struct {
	ChainID   uint64 `json:"chainId"`
	SchemaUID string `json:"schemaUid" binding:"required"`
	UID       string `json:"uid" binding:"required"`
	Revoker   string `json:"revoker" binding:"required"`
	Deadline  uint64 `json:"deadline" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// Result is the uniform {ok, ...} response shape of every relay
// operation. Callers must not assume the attestation exists unless OK
// is true and UID is a well-formed hash.
type Result struct {
	OK     bool   `json:"ok"`
	UID    string `json:"uid,omitempty"`
	TxHash string `json:"txHash,omitempty"`
	Error  string `json:"error,omitempty"`
}
