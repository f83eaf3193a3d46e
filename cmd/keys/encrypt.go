// Package keys encrypts exchange credentials for EXCHANGE_API_SECRET_ENC.
package keys

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	logger "github.com/sirupsen/logrus"

	"tradeledger/src/security"
)

// Encrypt reads one secret line from in and writes its ciphertext to out.
// The key comes from EXCHANGE_CREDENTIALS_KEY, or from keyOverride when set.
func Encrypt(in io.Reader, out io.Writer, keyOverride string) error {
	reader := bufio.NewScanner(in)
	reader.Buffer(make([]byte, 0, 1024), 1024*1024)

	if !reader.Scan() {
		if err := reader.Err(); err != nil {
			return err
		}
		return errors.New("no secret on input")
	}
	secret := strings.TrimSpace(reader.Text())
	if secret == "" {
		return errors.New("empty secret")
	}

	key := keyOverride
	if key == "" {
		key = GetConfig().CredentialsKey
	}
	encrypted, err := security.EncryptWithKey(key, secret)
	if err != nil {
		logger.WithError(err).Error("Failed to encrypt secret")
		return err
	}

	_, err = fmt.Fprintln(out, encrypted)
	return err
}
