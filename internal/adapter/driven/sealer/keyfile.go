package sealer

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// KeySize is the length in bytes of the symmetric key.
const KeySize = 32

// LoadOrCreateKey returns the key stored at path. When the file does not exist a
// new random key is generated and written with mode 0600. An existing file that
// cannot be read or decoded to exactly KeySize bytes is an error; the caller
// must not fall back to a fresh key since that would orphan every stored
// credential.
func LoadOrCreateKey(path string) ([]byte, error) {
	key, err := readKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	key = make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		// Another process created the key between our read and create.
		return readKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("create key file %s: %w", path, err)
	}

	if err := writeKeyFile(f, key); err != nil {
		// A partial file would fail to decode on every later start.
		_ = os.Remove(path)
		return nil, fmt.Errorf("write key file %s: %w", path, err)
	}

	return key, nil
}

// writeKey is replaced in tests to simulate a failing disk.
var writeKey = (*os.File).WriteString

func writeKeyFile(f *os.File, key []byte) error {
	if _, err := writeKey(f, base64.StdEncoding.EncodeToString(key)+"\n"); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode key file %s: %w", path, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key file %s: want %d bytes, got %d", path, KeySize, len(key))
	}

	return key, nil
}
