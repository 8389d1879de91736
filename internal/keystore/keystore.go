// Package keystore manages the machine-bound Ed25519 signing key.
//
// The private key is stored as encrypted PKCS#8 PEM under AES-256-GCM.
// The encryption key is derived with PBKDF2-SHA256 from the machine
// identity (hostname and username), so the keystore only opens on the
// machine that created it. Signing is best-effort: callers that cannot
// open the keystore continue in unsigned mode.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"os/user"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"useaid/internal/store"
)

// Derivation parameters.
const (
	derivationLabel = "useai-keystore"
	pbkdf2Rounds    = 100_000
	keySize         = 32
	saltSize        = 32
	ivSize          = 12
	tagSize         = 16
)

// Errors
var (
	ErrDecryptFailed = errors.New("keystore: decryption failed (wrong machine or corrupt keystore)")
	ErrMalformed     = errors.New("keystore: malformed keystore file")
)

// File is the on-disk keystore document. All binary fields are hex.
type File struct {
	PublicKeyPEM        string `json:"public_key_pem"`
	EncryptedPrivateKey string `json:"encrypted_private_key"`
	IV                  string `json:"iv"`
	Tag                 string `json:"tag"`
	Salt                string `json:"salt"`
	CreatedAt           string `json:"created_at"`
}

// Key is an opened signing key.
type Key struct {
	Private      ed25519.PrivateKey
	PublicKeyPEM string
}

// OpenOrCreate opens the keystore at path, generating a fresh key pair on
// first use. An existing keystore that cannot be decrypted is returned as
// an error; it is never overwritten.
func OpenOrCreate(path string) (*Key, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return generate(path)
	}
	return open(path)
}

// Open opens an existing keystore.
func open(path string) (*Key, error) {
	var f File
	if !store.ReadJSON(path, &f) {
		return nil, ErrMalformed
	}

	salt, err := hex.DecodeString(f.Salt)
	if err != nil || len(salt) != saltSize {
		return nil, ErrMalformed
	}
	iv, err := hex.DecodeString(f.IV)
	if err != nil || len(iv) != ivSize {
		return nil, ErrMalformed
	}
	tag, err := hex.DecodeString(f.Tag)
	if err != nil || len(tag) != tagSize {
		return nil, ErrMalformed
	}
	ciphertext, err := hex.DecodeString(f.EncryptedPrivateKey)
	if err != nil {
		return nil, ErrMalformed
	}

	aead, err := newGCM(deriveKey(salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	priv, err := parsePrivatePEM(plaintext)
	if err != nil {
		return nil, err
	}
	return &Key{Private: priv, PublicKeyPEM: f.PublicKeyPEM}, nil
}

// generate creates a key pair and persists the encrypted keystore.
func generate(path string) (*Key, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keystore: generate key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("keystore: encode private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("keystore: encode public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keystore: salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("keystore: iv: %w", err)
	}

	aead, err := newGCM(deriveKey(salt))
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, iv, privPEM, nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	f := File{
		PublicKeyPEM:        string(pubPEM),
		EncryptedPrivateKey: hex.EncodeToString(ciphertext),
		IV:                  hex.EncodeToString(iv),
		Tag:                 hex.EncodeToString(tag),
		Salt:                hex.EncodeToString(salt),
		CreatedAt:           time.Now().UTC().Format(time.RFC3339),
	}
	if err := store.WriteJSON(path, f, store.PermSecretFile); err != nil {
		return nil, fmt.Errorf("keystore: persist: %w", err)
	}
	return &Key{Private: priv, PublicKeyPEM: string(pubPEM)}, nil
}

// deriveKey derives the AES key from the machine identity and salt.
func deriveKey(salt []byte) []byte {
	secret := machineIdentity() + ":" + derivationLabel
	return pbkdf2.Key([]byte(secret), salt, pbkdf2Rounds, keySize, sha256.New)
}

// machineIdentity returns "hostname:username".
func machineIdentity() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	if username == "" {
		username = os.Getenv("USER")
	}
	return hostname + ":" + username
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keystore: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keystore: gcm: %w", err)
	}
	return aead, nil
}

func parsePrivatePEM(pemData []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, ErrMalformed
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keystore: parse private key: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("keystore: unsupported key type %T", parsed)
	}
	return priv, nil
}
