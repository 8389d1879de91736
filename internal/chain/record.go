// Package chain implements the signed, hash-linked record log that backs
// every session.
//
// Each record binds five core fields (id, type, session_id, timestamp, data)
// to the hash of its predecessor. The first record in a file links to the
// literal string "GENESIS". Records are appended as complete JSON lines and
// are never rewritten.
package chain

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Genesis is the prev_hash of the first record in a chain file.
const Genesis = "GENESIS"

// Unsigned is the signature value used when no signing key is available.
const Unsigned = "unsigned"

// RecordType identifies the kind of chain record.
type RecordType string

// Record types.
const (
	TypeSessionStart RecordType = "session_start"
	TypeHeartbeat    RecordType = "heartbeat"
	TypeSessionEnd   RecordType = "session_end"
	TypeSessionSeal  RecordType = "session_seal"
	TypeMilestone    RecordType = "milestone"
)

// Errors
var (
	ErrInvalidPublicKey = errors.New("chain: invalid public key")
	ErrMalformedRecord  = errors.New("chain: malformed record")
)

// Record is one line of a chain file.
//
// Data is kept as raw JSON so that unknown keys written by newer versions
// survive a read/verify round trip. The hash depends on the serialization
// present at write time; readers must hash the stored bytes, never a
// re-serialized form.
type Record struct {
	ID        string          `json:"id"`
	Type      RecordType      `json:"type"`
	SessionID string          `json:"session_id"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
	Signature string          `json:"signature"`
}

// canonicalCore serializes the five core fields with keys in the fixed
// order id, type, session_id, timestamp, data.
func (r *Record) canonicalCore() ([]byte, error) {
	id, err := json.Marshal(r.ID)
	if err != nil {
		return nil, err
	}
	typ, err := json.Marshal(string(r.Type))
	if err != nil {
		return nil, err
	}
	sid, err := json.Marshal(r.SessionID)
	if err != nil {
		return nil, err
	}
	ts, err := json.Marshal(r.Timestamp)
	if err != nil {
		return nil, err
	}
	data := r.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: data is not valid JSON", ErrMalformedRecord)
	}

	buf := make([]byte, 0, 64+len(id)+len(typ)+len(sid)+len(ts)+len(data))
	buf = append(buf, `{"id":`...)
	buf = append(buf, id...)
	buf = append(buf, `,"type":`...)
	buf = append(buf, typ...)
	buf = append(buf, `,"session_id":`...)
	buf = append(buf, sid...)
	buf = append(buf, `,"timestamp":`...)
	buf = append(buf, ts...)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, '}')
	return buf, nil
}

// ComputeHash returns the hex SHA-256 over the canonical core fields
// concatenated with prevHash.
func ComputeHash(r *Record, prevHash string) (string, error) {
	core, err := r.canonicalCore()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(core)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SignHash signs the decoded hash bytes with an Ed25519 key.
// A nil key yields the Unsigned marker; signing is best-effort.
func SignHash(hash string, key ed25519.PrivateKey) string {
	if len(key) != ed25519.PrivateKeySize {
		return Unsigned
	}
	raw, err := hex.DecodeString(hash)
	if err != nil {
		return Unsigned
	}
	return hex.EncodeToString(ed25519.Sign(key, raw))
}

// MarshalData encodes an open key/value mapping for a record's data field.
// Go's encoder sorts map keys, which gives a stable serialization for the
// keys present at write time.
func MarshalData(data map[string]any) (json.RawMessage, error) {
	if data == nil {
		return json.RawMessage(`{}`), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("chain: encode data: %w", err)
	}
	return b, nil
}

// UnmarshalData decodes the record's data field into v.
func (r *Record) UnmarshalData(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Build allocates a fully formed, hashed and signed record stamped with the
// current time.
func Build(typ RecordType, sessionID string, data map[string]any, prevHash string, key ed25519.PrivateKey) (*Record, error) {
	return BuildAt(typ, sessionID, data, prevHash, key, time.Now())
}

// BuildAt is Build with an explicit timestamp.
func BuildAt(typ RecordType, sessionID string, data map[string]any, prevHash string, key ed25519.PrivateKey, at time.Time) (*Record, error) {
	raw, err := MarshalData(data)
	if err != nil {
		return nil, err
	}
	r := &Record{
		ID:        newRecordID(),
		Type:      typ,
		SessionID: sessionID,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Data:      raw,
		PrevHash:  prevHash,
	}
	hash, err := ComputeHash(r, prevHash)
	if err != nil {
		return nil, err
	}
	r.Hash = hash
	r.Signature = SignHash(hash, key)
	return r, nil
}

// newRecordID returns a short opaque identifier, unique within a file.
func newRecordID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}

// VerifyRecord recomputes a record's hash against the expected predecessor.
func VerifyRecord(r *Record, expectedPrev string) bool {
	if r.PrevHash != expectedPrev {
		return false
	}
	hash, err := ComputeHash(r, expectedPrev)
	if err != nil {
		return false
	}
	return hash == r.Hash
}

// VerifyResult reports the outcome of a full chain walk.
type VerifyResult struct {
	Valid          bool `json:"valid"`
	SignatureValid bool `json:"signature_valid"`
	// BrokenAt is the index of the first failing record, or -1.
	BrokenAt int `json:"broken_at"`
}

// VerifyChain walks records from Genesis and checks hash linkage, then
// signatures. Hash failures take precedence over signature failures.
// With an empty publicKeyPEM signatures are not checked and SignatureValid
// is true only for the empty chain.
func VerifyChain(records []*Record, publicKeyPEM string) VerifyResult {
	res := VerifyResult{Valid: true, SignatureValid: true, BrokenAt: -1}

	prev := Genesis
	for i, r := range records {
		if !VerifyRecord(r, prev) {
			res.Valid = false
			res.SignatureValid = false
			res.BrokenAt = i
			return res
		}
		prev = r.Hash
	}

	if len(records) == 0 {
		return res
	}

	if publicKeyPEM == "" {
		res.SignatureValid = false
		return res
	}

	pub, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		res.SignatureValid = false
		res.BrokenAt = 0
		return res
	}
	for i, r := range records {
		if !verifySignature(pub, r.Hash, r.Signature) {
			res.SignatureValid = false
			res.BrokenAt = i
			return res
		}
	}
	return res
}

func verifySignature(pub ed25519.PublicKey, hash, signature string) bool {
	if signature == Unsigned {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	raw, err := hex.DecodeString(hash)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, raw, sig)
}

// ParsePublicKeyPEM decodes a PKIX PEM Ed25519 public key.
func ParsePublicKeyPEM(pemData string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, ErrInvalidPublicKey
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidPublicKey, parsed)
	}
	return pub, nil
}
