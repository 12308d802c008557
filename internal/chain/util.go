package chain

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strconv"
	"strings"
)

// NormalizeWSEndpoint maps http(s) RPC urls and bare hosts onto their
// websocket equivalents.
func NormalizeWSEndpoint(rpc string) string {
	rpc = strings.TrimRight(strings.TrimSpace(rpc), "/")
	switch {
	case rpc == "":
		return ""
	case strings.HasPrefix(rpc, "ws://") || strings.HasPrefix(rpc, "wss://"):
		return rpc
	case strings.HasPrefix(rpc, "https://"):
		return "wss://" + strings.TrimPrefix(rpc, "https://")
	case strings.HasPrefix(rpc, "http://"):
		return "ws://" + strings.TrimPrefix(rpc, "http://")
	}
	return "wss://" + rpc
}

func hexString(b []byte) string {
	return hex.EncodeToString(b)
}

func decodeHex(v string) ([]byte, error) {
	v = strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")
	return hex.DecodeString(v)
}

func parseHexUint64(v string) (uint64, error) {
	if v == "" {
		return 0, errors.New("empty hex string")
	}
	return strconv.ParseUint(strings.TrimPrefix(v, "0x"), 16, 64)
}

// hexToDecimal converts a 0x quantity of any size into base 10.
func hexToDecimal(v string) (string, error) {
	n, ok := new(big.Int).SetString(strings.TrimPrefix(v, "0x"), 16)
	if !ok {
		return "", errors.New("invalid hex quantity " + strconv.Quote(v))
	}
	return n.String(), nil
}
