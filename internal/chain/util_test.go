package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWSEndpoint(t *testing.T) {
	cases := map[string]string{
		"":                                 "",
		"wss://dancebox.tanssi-api.network": "wss://dancebox.tanssi-api.network",
		"ws://127.0.0.1:9944/":             "ws://127.0.0.1:9944",
		"https://rpc.example.org":          "wss://rpc.example.org",
		"http://localhost:9933":            "ws://localhost:9933",
		"  rpc.example.org  ":              "wss://rpc.example.org",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeWSEndpoint(in), in)
	}
}

func TestHexToDecimal(t *testing.T) {
	out, err := hexToDecimal("0x162e")
	assert.NoError(t, err)
	assert.Equal(t, "5678", out)

	_, err = hexToDecimal("0xzz")
	assert.Error(t, err)
}
