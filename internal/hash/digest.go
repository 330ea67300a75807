package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
)

const prefix = "sha256:"

// DigestReader hashes everything r yields.
func DigestReader(r io.Reader) (digest string, size int64, err error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hash stream: %w", err)
	}
	return prefix + hex.EncodeToString(h.Sum(nil)), n, nil
}

func DigestBytes(raw []byte) string {
	h := sha256.Sum256(raw)
	return prefix + hex.EncodeToString(h[:])
}

// Key digests an ordered list of parts. Each part is length-prefixed so
// ("ab", "c") and ("a", "bc") never collide.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		io.WriteString(h, strconv.Itoa(len(p)))
		io.WriteString(h, ":")
		io.WriteString(h, p)
	}
	return prefix + hex.EncodeToString(h.Sum(nil))
}
