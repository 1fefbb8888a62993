package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	key := []byte("s3cret")
	token, exp, err := IssueToken("alice", key, time.Hour)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	sub, err := VerifyToken(token, key)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)

	_, err = VerifyToken(token, []byte("other"))
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	key := []byte("s3cret")
	token, _, err := IssueToken("alice", key, -time.Minute)
	require.NoError(t, err)

	_, err = VerifyToken(token, key)
	assert.Error(t, err)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "mallory"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = VerifyToken(unsigned, []byte("s3cret"))
	assert.Error(t, err)
}

func TestIssueValidation(t *testing.T) {
	_, _, err := IssueToken("", []byte("k"), time.Hour)
	assert.Error(t, err)
	_, _, err = IssueToken("alice", nil, time.Hour)
	assert.Error(t, err)
	_, err = VerifyToken("", []byte("k"))
	assert.Error(t, err)
}
