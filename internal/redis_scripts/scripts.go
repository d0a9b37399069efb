package redis_scripts

import (
	"crypto/sha1" //nolint:gosec // used for deterministic script hash
	"encoding/hex"
)

// Insert writes KEYS[1] as {value=ARGV[1], etag=ARGV[2]} unless it exists and
// applies a PEXPIRE of ARGV[3] ms when positive. Returns 0 on collision.
const Insert = `if redis.call("exists", KEYS[1]) == 1 then return 0 end
redis.call("hset", KEYS[1], "value", ARGV[1], "etag", ARGV[2])
if tonumber(ARGV[3]) > 0 then redis.call("pexpire", KEYS[1], ARGV[3]) end
return 1`

// Touch sets etag=ARGV[1] on KEYS[1] and either persists it (ARGV[2] == 0)
// or resets its expiry to ARGV[2] ms. Returns 0 when the key is gone.
const Touch = `if redis.call("exists", KEYS[1]) == 0 then return 0 end
redis.call("hset", KEYS[1], "etag", ARGV[1])
if tonumber(ARGV[2]) > 0 then redis.call("pexpire", KEYS[1], ARGV[2]) else redis.call("persist", KEYS[1]) end
return 1`

// Script wraps a Lua source and precomputed sha.
type Script struct {
	Source string
	SHA    string
}

// NewScript builds a Script with deterministic sha1.
func NewScript(src string) Script {
	sum := sha1.Sum([]byte(src))
	return Script{
		Source: src,
		SHA:    hex.EncodeToString(sum[:]),
	}
}
