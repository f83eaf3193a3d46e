package keys

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/src/security"
)

const testKey = "owDIMUMqzGoa4kKPzO4vNOwQVy1o2NfXyBC2BZ9OLNw="

func TestEncrypt_RoundTrip(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Encrypt(strings.NewReader("  my-api-secret \n"), &out, testKey))

	ciphertext := strings.TrimSpace(out.String())
	require.NotEmpty(t, ciphertext)
	assert.NotContains(t, ciphertext, "my-api-secret")

	plain, err := security.DecryptWithKey(testKey, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "my-api-secret", plain)
}

func TestEncrypt_EmptyInput(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, Encrypt(strings.NewReader(""), &out, testKey))
	assert.Error(t, Encrypt(strings.NewReader("   \n"), &out, testKey))
	assert.Empty(t, out.String())
}

func TestEncrypt_RequiresConfiguredKey(t *testing.T) {
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", "")

	var out bytes.Buffer
	err := Encrypt(strings.NewReader("my-api-secret\n"), &out, "")
	assert.ErrorIs(t, err, security.ErrNoKey)
	assert.Empty(t, out.String())
}
