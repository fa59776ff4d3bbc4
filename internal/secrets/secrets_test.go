package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"tecky-admin/internal/config"
)

func TestIMAPPasswordRoundTrip(t *testing.T) {
	keyring.MockInit()
	t.Setenv(PasswordEnv, "")

	cfg := config.Default()
	cfg.Mail.Username = "careers@tecky.example"
	acct := IMAPKeyringAccount(cfg)
	assert.Equal(t, "imap:careers@tecky.example@imap.gmail.com", acct)

	_, err := GetIMAPPassword(acct)
	require.ErrorIs(t, err, ErrNoPassword)

	require.NoError(t, SetIMAPPassword(acct, "hunter2"))
	pw, err := GetIMAPPassword(acct)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)

	require.NoError(t, DeleteIMAPPassword(acct))
	require.NoError(t, DeleteIMAPPassword(acct))
}

func TestGetIMAPPassword_EnvFallback(t *testing.T) {
	keyring.MockInit()
	t.Setenv(PasswordEnv, "from-env")

	pw, err := GetIMAPPassword("imap:nobody@nowhere")
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)
}

func TestSetIMAPPassword_Validates(t *testing.T) {
	keyring.MockInit()
	assert.Error(t, SetIMAPPassword("", "x"))
	assert.Error(t, SetIMAPPassword("acct", "  "))
}
