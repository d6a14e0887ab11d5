package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeccak256HexKnownVector(t *testing.T) {
	// keccak256("") as used by Ethereum
	assert.Equal(t,
		"0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		Keccak256Hex([]byte("")))
}

func TestCanonicalJSONIsOrderIndependent(t *testing.T) {
	type a struct {
		Zeta  string `json:"zeta"`
		Alpha int    `json:"alpha"`
	}
	first, err := CanonicalJSON(a{Zeta: "z", Alpha: 1})
	require.NoError(t, err)

	second, err := CanonicalJSON(map[string]interface{}{"alpha": 1, "zeta": "z"})
	require.NoError(t, err)

	assert.Equal(t, `{"alpha":1,"zeta":"z"}`, string(first))
	assert.Equal(t, first, second)
}

func TestHashCanonicalStable(t *testing.T) {
	h1, _, err := HashCanonical(map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)
	h2, _, err := HashCanonical(map[string]string{"a": "1", "b": "2"})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestRandomToken(t *testing.T) {
	t1, err := RandomToken()
	require.NoError(t, err)
	t2, err := RandomToken()
	require.NoError(t, err)

	assert.Len(t, t1, TokenBytes*2)
	assert.NotEqual(t, t1, t2)
}
