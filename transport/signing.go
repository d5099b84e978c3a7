package transport

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"golang.org/x/crypto/hkdf"
)

// signingInfo binds derived keys to their use.
const signingInfo = "groundlink mavlink2 signing key"

// ErrEmptyPassphrase is returned when deriving a key from an empty passphrase.
var ErrEmptyPassphrase = errors.New("empty signing passphrase")

// DeriveSigningKey derives a 32 byte MAVLink v2 signing key from a shared
// passphrase. Both ends of the link must use the same passphrase and salt.
func DeriveSigningKey(passphrase string, salt []byte) (*frame.V2Key, error) {
	raw, err := deriveKeyBytes(passphrase, salt)
	if err != nil {
		return nil, err
	}
	key := frame.V2Key(raw)
	return &key, nil
}

func deriveKeyBytes(passphrase string, salt []byte) ([32]byte, error) {
	var key [32]byte
	if passphrase == "" {
		return key, ErrEmptyPassphrase
	}
	reader := hkdf.New(sha256.New, []byte(passphrase), salt, []byte(signingInfo))
	if _, err := io.ReadFull(reader, key[:]); err != nil {
		return key, fmt.Errorf("failed to derive signing key: %w", err)
	}
	return key, nil
}
