package keyring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestPasswordLifecycle(t *testing.T) {
	keyring.MockInit()

	const vaultID = "0123456789abcdef"
	assert.False(t, HasPassword(vaultID))

	_, err := GetPassword(vaultID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, SavePassword(vaultID, []byte("hunter2")))
	assert.True(t, HasPassword(vaultID))

	got, err := GetPassword(vaultID)
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), got)

	require.NoError(t, DeletePassword(vaultID))
	assert.False(t, HasPassword(vaultID))

	// Deleting twice is fine
	require.NoError(t, DeletePassword(vaultID))
}

func TestGetPassword_EmptyVaultID(t *testing.T) {
	keyring.MockInit()

	_, err := GetPassword("")
	assert.ErrorIs(t, err, ErrNotFound)
}
