package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKeys = Keys{
	HMACKey:       []byte("test-hmac-key"),
	EncryptionKey: []byte("0123456789abcdef0123456789abcdef"),
}

func TestNewToken(t *testing.T) {
	a := NewToken()
	b := NewToken()

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestNewNumericCode(t *testing.T) {
	code, err := NewNumericCode(6)
	require.NoError(t, err)
	require.Len(t, code, 6)

	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9')
	}
}

func TestHashDestinationIsDeterministic(t *testing.T) {
	a := testKeys.HashDestination("+447700900123")
	b := testKeys.HashDestination("+447700900123")
	c := testKeys.HashDestination("+447700900124")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotContains(t, a, "447700900123")
}

func TestSealOpenRoundTrip(t *testing.T) {
	sealed, err := testKeys.Seal("mick@example.com")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "mick@example.com")

	opened, err := testKeys.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "mick@example.com", opened)
}

func TestOpenRejectsTampering(t *testing.T) {
	sealed, err := testKeys.Seal("+447700900123")
	require.NoError(t, err)

	t.Run("garbage input", func(t *testing.T) {
		_, err := testKeys.Open("not-base64!!!")
		assert.Error(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		other := Keys{EncryptionKey: []byte("ffffffffffffffffffffffffffffffff")}
		_, err := other.Open(sealed)
		assert.Error(t, err)
	})
}

func TestHashSecretAndCompare(t *testing.T) {
	hash, err := HashSecret("482913")
	require.NoError(t, err)
	assert.NotEqual(t, "482913", hash)

	ok, err := CompareSecret("482913", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CompareSecret("000000", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = HashSecret("")
	assert.Error(t, err)
}
