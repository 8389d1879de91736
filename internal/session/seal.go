package session

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"

	"useaid/internal/chain"
)

// sealDigest binds the chain's first and last hash into one signable value.
func sealDigest(chainStartHash, chainEndHash string) []byte {
	h := sha256.New()
	h.Write([]byte("useai-seal-v1"))
	h.Write([]byte(chainStartHash))
	h.Write([]byte(":"))
	h.Write([]byte(chainEndHash))
	return h.Sum(nil)
}

// SignSeal signs the (chain_start_hash, chain_end_hash) pair. Returns the
// unsigned marker when no key is available.
func SignSeal(chainStartHash, chainEndHash string, key ed25519.PrivateKey) string {
	if len(key) != ed25519.PrivateKeySize {
		return chain.Unsigned
	}
	return hex.EncodeToString(ed25519.Sign(key, sealDigest(chainStartHash, chainEndHash)))
}

// VerifySeal checks a seal signature against a public key PEM.
func VerifySeal(publicKeyPEM, chainStartHash, chainEndHash, signature string) bool {
	if signature == chain.Unsigned {
		return false
	}
	pub, err := chain.ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, sealDigest(chainStartHash, chainEndHash), sig)
}
