package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forecourt-service/internal/model"
)

func TestParseRoundTrip(t *testing.T) {
	parser := NewParser("secret")
	principal := model.Principal{
		UserID: uuid.New(),
		OrgID:  uuid.New(),
		Role:   model.UserRoleStationOperator,
	}

	token, err := parser.Issue(principal, time.Hour)
	require.NoError(t, err)

	got, err := parser.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, principal, got)
}

func TestParseRejects(t *testing.T) {
	parser := NewParser("secret")
	valid := model.Principal{UserID: uuid.New(), Role: model.UserRoleStationAdmin}

	expired, _ := parser.Issue(valid, -time.Minute)
	otherSecret, _ := NewParser("other").Issue(valid, time.Hour)
	badRole, _ := parser.Issue(model.Principal{UserID: uuid.New(), Role: "DRIVER"}, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: valid.UserID.String(), Role: string(valid.Role)}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "expired", token: expired},
		{name: "wrong secret", token: otherSecret},
		{name: "unknown role", token: badRole},
		{name: "unsigned", token: none},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
