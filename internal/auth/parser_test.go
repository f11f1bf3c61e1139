package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mavuno/demand-engine/internal/model"
)

const testSecret = "parser-test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestParser_Parse(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	token := signToken(t, testSecret, Claims{
		OrgID: orgID.String(),
		Role:  string(model.RoleSupplier),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	principal, err := NewParser(testSecret).Parse(token)
	require.NoError(t, err)
	assert.Equal(t, userID, principal.UserID)
	assert.Equal(t, orgID, principal.OrgID)
	assert.True(t, principal.IsSupplier())
}

func TestParser_Parse_OrgOptional(t *testing.T) {
	token := signToken(t, testSecret, Claims{
		Role: string(model.RoleFarmer),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	principal, err := NewParser(testSecret).Parse(token)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, principal.OrgID)
	assert.True(t, principal.IsFarmer())
}

func TestParser_Parse_Rejections(t *testing.T) {
	userID := uuid.New()
	valid := jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "wrong secret",
			token: signToken(t, "another-secret", Claims{Role: "FARMER", RegisteredClaims: valid}),
		},
		{
			name: "expired",
			token: signToken(t, testSecret, Claims{Role: "FARMER", RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID.String(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			}}),
		},
		{
			name:  "non-uuid subject",
			token: signToken(t, testSecret, Claims{Role: "FARMER", RegisteredClaims: jwt.RegisteredClaims{Subject: "42"}}),
		},
		{
			name:  "garbage",
			token: "not.a.token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(testSecret).Parse(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
