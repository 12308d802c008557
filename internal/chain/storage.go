package chain

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// Twox128 is the Substrate storage hasher: two seeded XXH64 rounds,
// little-endian, concatenated.
func Twox128(data []byte) []byte {
	out := make([]byte, 16)
	for seed := uint64(0); seed < 2; seed++ {
		h := xxhash.NewWithSeed(seed)
		_, _ = h.Write(data)
		binary.LittleEndian.PutUint64(out[seed*8:], h.Sum64())
	}
	return out
}

// StorageKey returns the hex key of a plain storage value.
func StorageKey(pallet, item string) string {
	key := append(Twox128([]byte(pallet)), Twox128([]byte(item))...)
	return "0x" + hex.EncodeToString(key)
}

var (
	keyTimestampNow           = StorageKey("Timestamp", "Now")
	keyParachainID            = StorageKey("ParachainInfo", "ParachainId")
	keyCollatorContainerChain = StorageKey("CollatorAssignment", "CollatorContainerChain")
	keyAuthorities            = StorageKey("AuthoritiesNoting", "Authorities")
)
