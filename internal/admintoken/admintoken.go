// Package admintoken checks bearer tokens presented to the admin endpoints.
// Tokens are configured either in plaintext or as an Argon2id hash.
package admintoken

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16
)

// Hash returns the encoded Argon2id hash of token, suitable for
// ADMIN_API_TOKEN_HASH.
func Hash(token string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	saltB64 := base64.RawStdEncoding.EncodeToString(salt)
	hashB64 := base64.RawStdEncoding.EncodeToString(hash)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s", argonMemory, argonTime, argonThreads, saltB64, hashB64), nil
}

type params struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	hash    []byte
}

func decode(encoded string) (params, bool) {
	var p params
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return p, false
	}

	fields := strings.Split(parts[3], ",")
	if len(fields) != 3 {
		return p, false
	}
	values := make([]uint64, 3)
	for i, prefix := range []string{"m=", "t=", "p="} {
		raw, ok := strings.CutPrefix(fields[i], prefix)
		if !ok {
			return p, false
		}
		bits := 32
		if prefix == "p=" {
			bits = 8
		}
		v, err := strconv.ParseUint(raw, 10, bits)
		if err != nil || v == 0 {
			return p, false
		}
		values[i] = v
	}
	p.memory, p.time, p.threads = uint32(values[0]), uint32(values[1]), uint8(values[2])

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return p, false
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.hash) == 0 {
		return p, false
	}
	return p, true
}

// Verify reports whether token matches the encoded Argon2id hash.
func Verify(token, encoded string) bool {
	p, ok := decode(encoded)
	if !ok {
		return false
	}
	check := argon2.IDKey([]byte(token), p.salt, p.time, p.memory, p.threads, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(p.hash, check) == 1
}

// Checker validates presented tokens against the configured credential.
type Checker struct {
	plain  []byte
	hashed string
}

// NewChecker prefers the hash when both are set. A malformed hash is an
// error so a typo does not silently disable the admin surface.
func NewChecker(plain, hashed string) (*Checker, error) {
	plain = strings.TrimSpace(plain)
	hashed = strings.TrimSpace(hashed)
	if hashed != "" {
		if _, ok := decode(hashed); !ok {
			return nil, fmt.Errorf("admintoken: malformed argon2id hash")
		}
		return &Checker{hashed: hashed}, nil
	}
	if plain == "" {
		return nil, nil
	}
	return &Checker{plain: []byte(plain)}, nil
}

func (c *Checker) Check(token string) bool {
	if c == nil || token == "" {
		return false
	}
	if c.hashed != "" {
		return Verify(token, c.hashed)
	}
	return subtle.ConstantTimeCompare([]byte(token), c.plain) == 1
}
