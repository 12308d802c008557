package chain

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

// DefaultSS58Format is the generic Substrate address prefix.
const DefaultSS58Format = 42

var ss58Prefix = []byte("SS58PRE")

// SS58 encodes the account under the given network prefix.
func (a AccountID) SS58(format uint16) (string, error) {
	var prefix []byte
	switch {
	case format < 64:
		prefix = []byte{byte(format)}
	case format < 16384:
		prefix = []byte{
			byte((format&0b1111_1100)>>2) | 0b0100_0000,
			byte(format>>8) | byte((format&0b11)<<6),
		}
	default:
		return "", errors.New("ss58 format out of range")
	}

	payload := append(prefix, a[:]...)
	h, err := blake2b.New512(nil)
	if err != nil {
		return "", err
	}
	_, _ = h.Write(ss58Prefix)
	_, _ = h.Write(payload)
	sum := h.Sum(nil)

	return base58.Encode(append(payload, sum[:2]...)), nil
}

// EncodeAddresses renders accounts as SS58 addresses. An account that cannot
// be encoded falls back to its hex form.
func EncodeAddresses(ids []AccountID, format uint16) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		addr, err := id.SS58(format)
		if err != nil {
			addr = id.Hex()
		}
		out = append(out, addr)
	}
	return out
}

func (a AccountID) Hex() string {
	return "0x" + hexString(a[:])
}
