package chain

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alice(t *testing.T) AccountID {
	t.Helper()
	b, err := hex.DecodeString("d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d")
	require.NoError(t, err)
	var id AccountID
	copy(id[:], b)
	return id
}

func TestSS58_GenericSubstrate(t *testing.T) {
	addr, err := alice(t).SS58(DefaultSS58Format)
	require.NoError(t, err)
	assert.Equal(t, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", addr)
}

func TestSS58_TwoBytePrefix(t *testing.T) {
	a, err := alice(t).SS58(5234)
	require.NoError(t, err)
	b, err := alice(t).SS58(DefaultSS58Format)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Greater(t, len(a), len(b))
}

func TestSS58_OutOfRange(t *testing.T) {
	_, err := alice(t).SS58(16384)
	assert.Error(t, err)
}

func TestEncodeAddresses(t *testing.T) {
	out := EncodeAddresses([]AccountID{alice(t)}, 16384)
	require.Len(t, out, 1)
	assert.Equal(t, "0xd43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d", out[0])
}
