package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conectasei/conectasei/internal/models"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := New("test-passphrase")
	require.NoError(t, err)

	creds := models.Credentials{Email: "operator@example.gov.br", Password: "s3cret!"}
	ciphertext, err := v.Encrypt(creds)
	require.NoError(t, err)
	require.NotEmpty(t, ciphertext)
	assert.NotContains(t, ciphertext, "s3cret!")

	got, err := v.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, creds, got)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	v, err := New("test-passphrase")
	require.NoError(t, err)

	creds := models.Credentials{Email: "a@b.c", Password: "x"}
	c1, err := v.Encrypt(creds)
	require.NoError(t, err)
	c2, err := v.Encrypt(creds)
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	v1, err := New("passphrase-one")
	require.NoError(t, err)
	v2, err := New("passphrase-two")
	require.NoError(t, err)

	ciphertext, err := v1.Encrypt(models.Credentials{Email: "a@b.c", Password: "x"})
	require.NoError(t, err)

	_, err = v2.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	v, err := New("test-passphrase")
	require.NoError(t, err)

	ciphertext, err := v.Encrypt(models.Credentials{Email: "a@b.c", Password: "x"})
	require.NoError(t, err)

	_, err = v.Decrypt("AAAA" + ciphertext[4:])
	assert.Error(t, err)

	_, err = v.Decrypt("not base64 at all!!!")
	assert.Error(t, err)
}

func TestEmptyCredentialsRoundTrip(t *testing.T) {
	v, err := New("test-passphrase")
	require.NoError(t, err)

	ciphertext, err := v.Encrypt(models.Credentials{})
	require.NoError(t, err)
	assert.Empty(t, ciphertext)

	got, err := v.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, models.Credentials{}, got)
}

func TestEmptyPassphraseRejected(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfig)
}
