package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params are the Argon2id cost parameters encoded into every hash.
type Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// DefaultParams is used by HashPassword.
var DefaultParams = Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	KeyLen:  32,
	SaltLen: 16,
}

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("security: password cannot be empty")

// HashPassword derives an Argon2id hash using DefaultParams.
func HashPassword(password string) (string, error) {
	return DefaultParams.Hash(password)
}

// Hash derives an Argon2id hash encoded as
// argon2id$v=19$t=<time>$m=<memory>$p=<threads>$<salt>$<hash>.
func (p Params) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)

	return fmt.Sprintf("argon2id$v=%d$t=%d$m=%d$p=%d$%s$%s",
		argon2.Version,
		p.Time,
		p.Memory,
		p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

type encodedHash struct {
	params Params
	salt   []byte
	key    []byte
}

func decodeHash(encoded string) (encodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 7 || parts[0] != "argon2id" {
		return encodedHash{}, errors.New("parse argon hash: unexpected format")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[1], "v="))
	if err != nil {
		return encodedHash{}, fmt.Errorf("parse argon hash version: %w", err)
	}
	if version != argon2.Version {
		return encodedHash{}, fmt.Errorf("parse argon hash: unsupported version %d", version)
	}

	var out encodedHash
	t, err := strconv.ParseUint(strings.TrimPrefix(parts[2], "t="), 10, 32)
	if err != nil {
		return encodedHash{}, fmt.Errorf("parse argon hash time: %w", err)
	}
	m, err := strconv.ParseUint(strings.TrimPrefix(parts[3], "m="), 10, 32)
	if err != nil {
		return encodedHash{}, fmt.Errorf("parse argon hash memory: %w", err)
	}
	th, err := strconv.ParseUint(strings.TrimPrefix(parts[4], "p="), 10, 8)
	if err != nil {
		return encodedHash{}, fmt.Errorf("parse argon hash threads: %w", err)
	}
	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return encodedHash{}, fmt.Errorf("decode salt: %w", err)
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(parts[6]); err != nil {
		return encodedHash{}, fmt.Errorf("decode hash: %w", err)
	}
	out.params = Params{
		Time:    uint32(t),
		Memory:  uint32(m),
		Threads: uint8(th),
		KeyLen:  uint32(len(out.key)),
		SaltLen: len(out.salt),
	}
	return out, nil
}

// VerifyPassword compares a plaintext password with a stored Argon2id hash
// in constant time.
func VerifyPassword(password, encoded string) (bool, error) {
	h, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	actual := argon2.IDKey([]byte(password), h.salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
	return subtle.ConstantTimeCompare(actual, h.key) == 1, nil
}

// NeedsRehash reports whether a stored hash was produced with parameters
// other than p and should be replaced after the next successful login.
func (p Params) NeedsRehash(encoded string) bool {
	h, err := decodeHash(encoded)
	if err != nil {
		return true
	}
	return h.params.Time != p.Time || h.params.Memory != p.Memory ||
		h.params.Threads != p.Threads || h.params.KeyLen != p.KeyLen
}

// dummyHash is verified against when no account matches so that unknown
// usernames take as long as wrong passwords.
var dummyHash, _ = HashPassword("agency-dummy-password")

// VerifyDummy burns one verification.
func VerifyDummy(password string) {
	_, _ = VerifyPassword(password, dummyHash)
}
