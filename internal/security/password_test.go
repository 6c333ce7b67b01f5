package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Sup3rSecret!")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	ok, err := VerifyPassword("Sup3rSecret!", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyPassword("WrongPassword", hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := HashPassword("")
	require.ErrorIs(t, err, ErrEmptyPassword)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	for _, encoded := range []string{"", "bcrypt$x", "argon2id$v=18$t=1$m=1$p=1$AA$AA", "argon2id$v=19$t=x$m=1$p=1$AA$AA"} {
		ok, err := VerifyPassword("pw", encoded)
		require.Error(t, err, encoded)
		require.False(t, ok)
	}
}

func TestNeedsRehash(t *testing.T) {
	cheap := Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}
	hash, err := cheap.Hash("pw")
	require.NoError(t, err)

	require.False(t, cheap.NeedsRehash(hash))
	require.True(t, DefaultParams.NeedsRehash(hash))
	require.True(t, DefaultParams.NeedsRehash("garbage"))

	ok, err := VerifyPassword("pw", hash)
	require.NoError(t, err)
	require.True(t, ok)
}
