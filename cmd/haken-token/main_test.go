package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/haken/internal/auth"
	"github.com/ashita-ai/haken/internal/model"
)

func TestKeygenThenIssue(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	privPath, pubPath, err := generateKeyPair(dir)
	require.NoError(t, err)

	token, expiresAt, err := issue(privPath, pubPath, "acct-1", "scheduler-7", model.RoleScheduler, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	// A server loading the same files accepts the token.
	mgr, err := auth.NewJWTManager(privPath, pubPath, time.Hour)
	require.NoError(t, err)
	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, model.RoleScheduler, claims.Role)
}

func TestKeygen_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	_, _, err := generateKeyPair(dir)
	require.NoError(t, err)

	_, _, err = generateKeyPair(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestIssue_RequiresKeyFiles(t *testing.T) {
	_, _, err := issue("", "", "acct-1", "ops", model.RoleOperator, time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HAKEN_JWT_PRIVATE_KEY")
}

func TestRun_UnknownCommand(t *testing.T) {
	assert.Error(t, run(nil))
	err := run([]string{"rotate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}
