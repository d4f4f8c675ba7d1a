package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash is returned when a stored password hash cannot be decoded.
var ErrInvalidHash = errors.New("invalid argon2id hash")

// Argon2Params are the Argon2id cost parameters for new hashes. Existing
// hashes are verified with the parameters encoded in them.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultArgon2Params returns the parameters used for profile passwords.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		KeyLen:  32,
		SaltLen: 16,
	}
}

// Argon2HashService implements ports.HashService using Argon2id.
type Argon2HashService struct {
	params Argon2Params
}

// NewArgon2HashService creates a hash service with DefaultArgon2Params.
func NewArgon2HashService() *Argon2HashService {
	return NewArgon2HashServiceWithParams(DefaultArgon2Params())
}

// NewArgon2HashServiceWithParams creates a hash service with custom costs.
func NewArgon2HashServiceWithParams(p Argon2Params) *Argon2HashService {
	return &Argon2HashService{params: p}
}

// Hash returns the PHC-style encoding
// $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>.
func (s *Argon2HashService) Hash(password string) (string, error) {
	salt := make([]byte, s.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, s.params.Time, s.params.Memory, s.params.Threads, s.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		s.params.Memory, s.params.Time, s.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against an encoded hash.
func (s *Argon2HashService) Verify(password string, encodedHash string) (bool, error) {
	h, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false, err
	}

	other := argon2.IDKey([]byte(password), h.salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
	return subtle.ConstantTimeCompare(h.key, other) == 1, nil
}

type decodedHash struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func decodeArgon2Hash(encoded string) (*decodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("%w: expected 6 parts, got %d", ErrInvalidHash, len(parts))
	}
	if parts[1] != "argon2id" {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidHash, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("%w: version: %v", ErrInvalidHash, err)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidHash, version)
	}

	h := &decodedHash{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Time, &h.params.Threads); err != nil {
		return nil, fmt.Errorf("%w: params: %v", ErrInvalidHash, err)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("%w: key: %v", ErrInvalidHash, err)
	}
	h.params.KeyLen = uint32(len(h.key))
	h.params.SaltLen = uint32(len(h.salt))
	return h, nil
}
