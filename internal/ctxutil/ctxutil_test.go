package ctxutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/haken/internal/auth"
	"github.com/ashita-ai/haken/internal/model"
)

func TestClaimsRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, ClaimsFromContext(ctx))
	assert.Empty(t, AccountIDFromContext(ctx))

	claims := &auth.Claims{AccountID: "acct-1", Role: model.RoleOperator}
	ctx = WithClaims(ctx, claims)
	assert.Same(t, claims, ClaimsFromContext(ctx))
	assert.Equal(t, "acct-1", AccountIDFromContext(ctx))
}

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Equal(t, "req-1", RequestIDFromContext(WithRequestID(ctx, "req-1")))
}
