package chain

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"
)

// =============================================================================
// Helper functions
// =============================================================================

func testKeyPair(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return priv, string(pemData)
}

func buildTestChain(t *testing.T, key ed25519.PrivateKey, n int) []*Record {
	t.Helper()
	records := make([]*Record, 0, n)
	prev := Genesis
	for i := 0; i < n; i++ {
		typ := TypeHeartbeat
		if i == 0 {
			typ = TypeSessionStart
		}
		r, err := Build(typ, "sess-1", map[string]any{"n": i}, prev, key)
		if err != nil {
			t.Fatalf("build record %d: %v", i, err)
		}
		records = append(records, r)
		prev = r.Hash
	}
	return records
}

// =============================================================================
// Tests for ComputeHash
// =============================================================================

func TestComputeHashDeterministic(t *testing.T) {
	r := &Record{
		ID:        "abc123",
		Type:      TypeSessionStart,
		SessionID: "sess-1",
		Timestamp: "2026-01-02T03:04:05Z",
		Data:      json.RawMessage(`{"client":"claude-code"}`),
	}

	h1, err := ComputeHash(r, Genesis)
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}
	h2, err := ComputeHash(r, Genesis)
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash not deterministic: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestComputeHashSensitiveToCore(t *testing.T) {
	base := &Record{
		ID:        "abc123",
		Type:      TypeSessionStart,
		SessionID: "sess-1",
		Timestamp: "2026-01-02T03:04:05Z",
		Data:      json.RawMessage(`{"client":"claude-code"}`),
	}
	baseHash, _ := ComputeHash(base, Genesis)

	mutations := []Record{
		{ID: "abc124", Type: base.Type, SessionID: base.SessionID, Timestamp: base.Timestamp, Data: base.Data},
		{ID: base.ID, Type: TypeHeartbeat, SessionID: base.SessionID, Timestamp: base.Timestamp, Data: base.Data},
		{ID: base.ID, Type: base.Type, SessionID: "sess-2", Timestamp: base.Timestamp, Data: base.Data},
		{ID: base.ID, Type: base.Type, SessionID: base.SessionID, Timestamp: "2026-01-02T03:04:06Z", Data: base.Data},
		{ID: base.ID, Type: base.Type, SessionID: base.SessionID, Timestamp: base.Timestamp, Data: json.RawMessage(`{"client":"claude-codf"}`)},
	}
	for i := range mutations {
		h, err := ComputeHash(&mutations[i], Genesis)
		if err != nil {
			t.Fatalf("mutation %d: %v", i, err)
		}
		if h == baseHash {
			t.Errorf("mutation %d did not change the hash", i)
		}
	}

	// prev hash change
	h, _ := ComputeHash(base, "0000")
	if h == baseHash {
		t.Error("prev hash change did not change the hash")
	}
}

func TestComputeHashEmptyData(t *testing.T) {
	nilData := &Record{ID: "a", Type: TypeHeartbeat, SessionID: "s", Timestamp: "t"}
	emptyData := &Record{ID: "a", Type: TypeHeartbeat, SessionID: "s", Timestamp: "t", Data: json.RawMessage(`{}`)}

	h1, _ := ComputeHash(nilData, Genesis)
	h2, _ := ComputeHash(emptyData, Genesis)
	if h1 != h2 {
		t.Error("nil data should hash identically to {}")
	}
}

// =============================================================================
// Tests for Build
// =============================================================================

func TestBuildRecord(t *testing.T) {
	key, _ := testKeyPair(t)

	r, err := Build(TypeSessionStart, "sess-1", map[string]any{"task_type": "coding"}, Genesis, key)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if r.ID == "" {
		t.Error("ID should not be empty")
	}
	if r.PrevHash != Genesis {
		t.Errorf("expected GENESIS prev hash, got %s", r.PrevHash)
	}
	if r.Signature == Unsigned {
		t.Error("record should be signed when a key is supplied")
	}
	if !VerifyRecord(r, Genesis) {
		t.Error("freshly built record should verify")
	}
}

func TestBuildUnsignedWithoutKey(t *testing.T) {
	r, err := Build(TypeHeartbeat, "sess-1", nil, Genesis, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if r.Signature != Unsigned {
		t.Errorf("expected %q signature, got %q", Unsigned, r.Signature)
	}
}

func TestBuildUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		r, err := Build(TypeHeartbeat, "sess-1", nil, Genesis, nil)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if seen[r.ID] {
			t.Fatalf("duplicate record id %s", r.ID)
		}
		seen[r.ID] = true
	}
}

// =============================================================================
// Tests for VerifyChain
// =============================================================================

func TestVerifyChainValid(t *testing.T) {
	key, pubPEM := testKeyPair(t)
	records := buildTestChain(t, key, 4)

	res := VerifyChain(records, pubPEM)
	if !res.Valid {
		t.Errorf("chain should be valid, broken at %d", res.BrokenAt)
	}
	if !res.SignatureValid {
		t.Errorf("signatures should be valid, broken at %d", res.BrokenAt)
	}
}

func TestVerifyChainEmpty(t *testing.T) {
	res := VerifyChain(nil, "")
	if !res.Valid || !res.SignatureValid {
		t.Error("empty chain should be fully valid")
	}
	if res.BrokenAt != -1 {
		t.Errorf("expected BrokenAt=-1, got %d", res.BrokenAt)
	}
}

func TestVerifyChainNoKey(t *testing.T) {
	key, _ := testKeyPair(t)
	records := buildTestChain(t, key, 3)

	res := VerifyChain(records, "")
	if !res.Valid {
		t.Error("hash linkage should hold without a key")
	}
	if res.SignatureValid {
		t.Error("signature_valid must be false when no key is supplied")
	}
}

func TestVerifyChainTamperedData(t *testing.T) {
	key, pubPEM := testKeyPair(t)
	records := buildTestChain(t, key, 3)

	// Flip one byte inside record 1's data.
	data := []byte(records[1].Data)
	data[len(data)-2] ^= 0x01
	records[1].Data = data

	res := VerifyChain(records, pubPEM)
	if res.Valid {
		t.Error("tampered chain should not verify")
	}
	if res.BrokenAt != 1 {
		t.Errorf("expected BrokenAt=1, got %d", res.BrokenAt)
	}
}

func TestVerifyChainBrokenLink(t *testing.T) {
	key, _ := testKeyPair(t)
	records := buildTestChain(t, key, 3)
	records[2].PrevHash = records[0].Hash

	res := VerifyChain(records, "")
	if res.Valid {
		t.Error("reordered chain should not verify")
	}
	if res.BrokenAt != 2 {
		t.Errorf("expected BrokenAt=2, got %d", res.BrokenAt)
	}
}

func TestVerifyChainBadSignature(t *testing.T) {
	key, pubPEM := testKeyPair(t)
	other, _ := testKeyPair(t)
	records := buildTestChain(t, key, 3)

	// Re-sign record 1 with a different key; hash linkage stays intact.
	records[1].Signature = SignHash(records[1].Hash, other)

	res := VerifyChain(records, pubPEM)
	if !res.Valid {
		t.Error("hash linkage should still hold")
	}
	if res.SignatureValid {
		t.Error("foreign signature should fail verification")
	}
	if res.BrokenAt != 1 {
		t.Errorf("expected BrokenAt=1, got %d", res.BrokenAt)
	}
}

// =============================================================================
// Round-trip with unknown data keys
// =============================================================================

func TestRoundTripPreservesUnknownKeys(t *testing.T) {
	key, pubPEM := testKeyPair(t)
	r, err := Build(TypeSessionEnd, "sess-1", map[string]any{
		"duration_seconds": 42,
		"future_field":     map[string]any{"nested": true},
	}, Genesis, key)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	line, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Record
	if err := json.Unmarshal(line, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	res := VerifyChain([]*Record{&back}, pubPEM)
	if !res.Valid || !res.SignatureValid {
		t.Errorf("round-tripped record should verify: %+v", res)
	}
}
