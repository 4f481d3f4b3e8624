package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "permis/pkg/domain-errors"
)

func TestGenerateProducesDistinctPasswords(t *testing.T) {
	first, err := Generate()
	require.NoError(t, err)
	second, err := Generate()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.GreaterOrEqual(t, len(first), 40, "32 random bytes encode to 43 characters")
}

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)
	assert.True(t, strings.HasPrefix(hash, "$2"), "bcrypt hashes start with $2")

	require.NoError(t, Verify("correct horse battery staple", hash))
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	hash, err := Hash("the real password")
	require.NoError(t, err)

	err = Verify("a guess", hash)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	_, err := Hash("")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestHashRejectsOverlongPassword(t *testing.T) {
	// bcrypt refuses input over 72 bytes rather than silently truncating.
	_, err := Hash(strings.Repeat("x", 73))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestHashSaltsEachCall(t *testing.T) {
	first, err := Hash("same password")
	require.NoError(t, err)
	second, err := Hash("same password")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestGeneratedPasswordSurvivesRoundTrip(t *testing.T) {
	password, err := Generate()
	require.NoError(t, err)

	hash, err := Hash(password)
	require.NoError(t, err)
	require.NoError(t, Verify(password, hash))
}
