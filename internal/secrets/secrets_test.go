package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := New("correct horse battery staple")
	require.NoError(t, err)

	sealed, err := s.Seal("sk-live-123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "sk-live-123")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", opened)
}

func TestSeal_NonceVaries(t *testing.T) {
	s, err := New("k")
	require.NoError(t, err)

	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	assert.NotEqual(t, a, b)
}

func TestOpen_WrongKey(t *testing.T) {
	s1, _ := New("one")
	s2, _ := New("two")

	sealed, err := s1.Seal("secret")
	require.NoError(t, err)

	_, err = s2.Open(sealed)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestOpen_LegacyPlaintext(t *testing.T) {
	s, _ := New("k")
	got, err := s.Open("sk-plain")
	require.NoError(t, err)
	assert.Equal(t, "sk-plain", got)
}

func TestPlainSealer(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	sealed, err := s.Seal("sk")
	require.NoError(t, err)
	assert.Equal(t, "sk", sealed)

	_, err = s.Open("v1:abcd")
	assert.ErrorIs(t, err, ErrMalformed)
}
