package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPasswordRoundTrip(t *testing.T) {
	phc, err := HashPassword("correcthorsebattery", "pepper-value")
	require.NoError(t, err)

	ok, err := VerifyPassword(phc, "correcthorsebattery", "pepper-value")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyPasswordRejectsWrongPassword(t *testing.T) {
	phc, err := HashPassword("correcthorsebattery", "pepper-value")
	require.NoError(t, err)

	ok, err := VerifyPassword(phc, "wrong-password", "pepper-value")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyPasswordRejectsWrongPepper(t *testing.T) {
	phc, err := HashPassword("correcthorsebattery", "pepper-one")
	require.NoError(t, err)

	ok, err := VerifyPassword(phc, "correcthorsebattery", "pepper-two")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashPasswordProducesDistinctSalts(t *testing.T) {
	a, err := HashPassword("same-password-here", "pepper")
	require.NoError(t, err)
	b, err := HashPassword("same-password-here", "pepper")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestNormalizePasswordRejectsTooShort(t *testing.T) {
	_, err := NormalizePassword("short1")
	require.ErrorIs(t, err, ErrWeakPassword)
}

func TestNormalizePasswordRejectsSingleClass(t *testing.T) {
	_, err := NormalizePassword("aaaaaaaaaaaaaaaa")
	require.ErrorIs(t, err, ErrWeakPassword)
}

func TestNormalizePasswordAcceptsMixedClasses(t *testing.T) {
	out, err := NormalizePassword("Password123")
	require.NoError(t, err)
	require.Equal(t, "Password123", out)
}

func TestNormalizePasswordRejectsControlCharacters(t *testing.T) {
	_, err := NormalizePassword("Password1\x00more")
	require.ErrorIs(t, err, ErrInvalidCharacter)
}

func TestNormalizePasswordRejectsTooLong(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'A'
	}
	long[0] = 'a'
	long[1] = '1'
	_, err := NormalizePassword(string(long))
	require.ErrorIs(t, err, ErrTooLong)
}
