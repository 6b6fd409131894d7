package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/navagetur/tokenseal/internal/core"
	"github.com/navagetur/tokenseal/internal/keyring"
)

func TestReadInput(t *testing.T) {
	got, err := readInput([]string{"from-arg"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "from-arg", got)

	got, err = readInput(nil, strings.NewReader("line one\nline two\n"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", got)

	got, err = readInput(nil, strings.NewReader("crlf\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "crlf", got)
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0 bytes"},
		{1023, "1023 bytes"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSize(tt.size))
	}
}

func TestGetPasswordWithRetry_Env(t *testing.T) {
	t.Setenv(core.PasswordEnvVar, "from-env")

	password, source, err := GetPasswordWithRetry("", "", func(p []byte) error {
		assert.Equal(t, "from-env", string(p))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, SourceEnv, source)
	assert.Equal(t, "from-env", string(password))

	_, _, err = GetPasswordWithRetry("", "", func([]byte) error { return core.ErrWrongPassword })
	assert.ErrorIs(t, err, core.ErrWrongPassword)
}

func TestGetPasswordWithRetry_Keyring(t *testing.T) {
	gokeyring.MockInit()
	t.Setenv(core.PasswordEnvVar, "")

	const vaultID = "abcdef0123456789"
	require.NoError(t, keyring.SavePassword(vaultID, []byte("from-keyring")))

	password, source, err := GetPasswordWithRetry("", vaultID, func(p []byte) error {
		if string(p) != "from-keyring" {
			return core.ErrWrongPassword
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, SourceKeyring, source)
	assert.Equal(t, "from-keyring", string(password))
}

func TestGetPasswordWithRetry_KeyringVerifyFailure(t *testing.T) {
	gokeyring.MockInit()
	t.Setenv(core.PasswordEnvVar, "")

	const vaultID = "0011223344556677"
	require.NoError(t, keyring.SavePassword(vaultID, []byte("whatever")))

	// Errors other than a wrong password are returned, not re-prompted
	boom := errors.New("vault unreadable")
	_, source, err := GetPasswordWithRetry("", vaultID, func([]byte) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, SourceKeyring, source)
}
