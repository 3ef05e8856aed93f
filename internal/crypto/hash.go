package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	HasherSHA256   = "sha256"
	HasherArgon2id = "argon2id"

	saltLength = 16
)

var ErrMalformedHash = errors.New("malformed password hash")

type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
}

func NewHasher(name string) (Hasher, error) {
	switch name {
	case "", HasherSHA256:
		return SHA256Hasher{}, nil
	case HasherArgon2id:
		return DefaultArgon2Hasher(), nil
	default:
		return nil, fmt.Errorf("unknown hasher: %s", name)
	}
}

// Hash returns the lowercase hex SHA-256 digest of password.
func Hash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// SHA256Hasher produces unsalted, deterministic digests.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(password string) (string, error) {
	return Hash(password), nil
}

func (SHA256Hasher) Verify(password, encoded string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(password)), []byte(encoded)) == 1
}

// Argon2Hasher salts every hash and encodes it as
// $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>.
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

func DefaultArgon2Hasher() Argon2Hasher {
	return Argon2Hasher{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		KeyLen:  32,
	}
}

func (h Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.Time, h.Memory, h.Threads, h.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.Memory, h.Time, h.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h Argon2Hasher) Verify(password, encoded string) bool {
	params, salt, key, err := decodeArgon2(encoded)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1
}

func decodeArgon2(encoded string) (Argon2Hasher, []byte, []byte, error) {
	var params Argon2Hasher

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != HasherArgon2id {
		return params, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, ErrMalformedHash
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return params, nil, nil, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, ErrMalformedHash
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return params, nil, nil, ErrMalformedHash
	}

	return params, salt, key, nil
}
