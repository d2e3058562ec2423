package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-side-key"))
	require.NoError(t, err, "expected token to sign")
	return token
}

func TestParseSession(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	tcases := []struct {
		name     string
		token    string
		expected Session
		err      bool
	}{
		{
			name:     "valid token",
			token:    signedToken(t, jwt.MapClaims{userIdClaim: 42, expClaim: exp.Unix()}),
			expected: Session{UserId: 42, ExpiresAt: exp},
		},
		{
			name:     "no expiry",
			token:    signedToken(t, jwt.MapClaims{userIdClaim: 7}),
			expected: Session{UserId: 7},
		},
		{
			name:  "missing user id",
			token: signedToken(t, jwt.MapClaims{expClaim: exp.Unix()}),
			err:   true,
		},
		{
			name:  "malformed token",
			token: "not-a-token",
			err:   true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := ParseSession(tc.token)
			if tc.err {
				assert.Error(t, err, "expected error parsing token")
				return
			}
			assert.NoError(t, err, "expected no error parsing token")
			assert.Equal(t, tc.expected.UserId, s.UserId, "expected user id to match")
			assert.True(t, tc.expected.ExpiresAt.Equal(s.ExpiresAt), "expected expiry to match")
		})
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	assert.False(t, Session{}.Expired(now), "expected session without expiry to never expire")
	assert.False(t, Session{ExpiresAt: now.Add(time.Minute)}.Expired(now))
	assert.True(t, Session{ExpiresAt: now.Add(-time.Minute)}.Expired(now))
	assert.True(t, Session{ExpiresAt: now}.Expired(now))
}
