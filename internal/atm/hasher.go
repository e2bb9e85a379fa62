package atm

import "github.com/cespare/xxhash/v2"

// Digest is the fixed-width output of the PIN hash collaborator. PINs are
// never stored or compared in cleartext.
type Digest uint64

// Hasher turns an ordered key sequence into a Digest. The same Hasher must
// be used when the expected digest is minted (card issuance / swipe) and
// when the entered PIN is checked, and both sides hash the pre-Enter
// sequence only.
type Hasher interface {
	Digest(keys []Key) Digest
}

// HasherFunc adapts a plain function to the Hasher interface.
type HasherFunc func(keys []Key) Digest

// Digest calls f.
func (f HasherFunc) Digest(keys []Key) Digest {
	return f(keys)
}

// XXHasher hashes key sequences with xxhash (64-bit, deterministic).
type XXHasher struct{}

// NewHasher returns the production Hasher.
func NewHasher() Hasher {
	return XXHasher{}
}

// Digest hashes the key sequence one byte per key.
func (XXHasher) Digest(keys []Key) Digest {
	h := xxhash.New()
	buf := make([]byte, 0, len(keys))
	for _, k := range keys {
		buf = append(buf, byte(k))
	}
	_, _ = h.Write(buf)

	return Digest(h.Sum64())
}
