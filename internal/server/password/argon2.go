// Package password hashes and verifies account passwords stored as argon2id
// PHC strings:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
//
// Salt and key are standard base64, with or without padding.
package password

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

const algorithmID = "argon2id"

// Upper bounds accepted from a stored hash. Anything larger is treated as
// corrupt rather than handed to argon2.IDKey.
const (
	maxMemory = 1 << 20 // KiB, 1 GiB
	maxTime   = 16
)

// ErrMalformedHash is returned by Verify when the stored hash cannot be
// parsed. It signals corrupt data, not a wrong password.
var ErrMalformedHash = errors.New("malformed password hash")

// Params are the argon2id cost parameters used by Hash.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams matches the parameters the account store was populated with.
var DefaultParams = Params{Memory: 64 * 1024, Time: 1, Parallelism: 4, SaltLength: 16, KeyLength: 32}

// Argon2 verifies candidates against stored argon2id hashes. It is safe for
// concurrent use.
type Argon2 struct {
	params Params
}

func NewArgon2(p Params) *Argon2 {
	return &Argon2{params: p}
}

// Hash derives a PHC string for secret with a fresh random salt.
func (a *Argon2) Hash(secret string) (string, error) {
	salt := make([]byte, a.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, a.params.Time, a.params.Memory, a.params.Parallelism, a.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		a.params.Memory, a.params.Time, a.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether candidate matches storedHash. The cost parameters
// come from storedHash, not from the receiver, so older hashes keep working.
func (a *Argon2) Verify(storedHash, candidate string) (bool, error) {
	h, err := parse(storedHash)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}

	computed := argon2.IDKey([]byte(candidate), h.salt, h.time, h.memory, h.parallelism, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(computed, h.key) == 1, nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parse(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, fmt.Errorf("unsupported algorithm %q", parts[1])
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, errors.New("missing version")
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return nil, fmt.Errorf("unsupported version %q", version)
	}

	h := &phc{}
	if err := parseParams(parts[3], h); err != nil {
		return nil, err
	}

	var err error
	if h.salt, err = decodeB64(parts[4]); err != nil || len(h.salt) == 0 {
		return nil, errors.New("invalid salt")
	}
	if h.key, err = decodeB64(parts[5]); err != nil || len(h.key) == 0 {
		return nil, errors.New("invalid key")
	}
	return h, nil
}

func parseParams(s string, h *phc) error {
	seen := map[string]bool{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || seen[k] {
			return fmt.Errorf("invalid parameter %q", pair)
		}
		seen[k] = true

		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n == 0 || n > maxMemory {
				return errors.New("invalid memory parameter")
			}
			h.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n == 0 || n > maxTime {
				return errors.New("invalid time parameter")
			}
			h.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || n == 0 {
				return errors.New("invalid parallelism parameter")
			}
			h.parallelism = uint8(n)
		default:
			return fmt.Errorf("unknown parameter %q", k)
		}
	}
	if !seen["m"] || !seen["t"] || !seen["p"] {
		return errors.New("missing parameters")
	}
	return nil
}

func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
