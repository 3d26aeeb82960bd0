package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

const keystoreVersion = 1

type keystoreFile struct {
	Version  int                 `json:"version"`
	Identity Identity            `json:"identity"`
	Crypto   keystore.CryptoJSON `json:"crypto"`
}

// SaveToKeystore encrypts the key seed with scrypt + AES-128-CTR and writes it
// to path with 0600 permissions. Parent directories are created with 0700.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	encrypted, err := keystore.EncryptDataV3(key.Seed(), []byte(passphrase), keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		return fmt.Errorf("crypto: encrypt key: %w", err)
	}
	payload, err := json.MarshalIndent(keystoreFile{
		Version:  keystoreVersion,
		Identity: key.Identity(),
		Crypto:   encrypted,
	}, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFromKeystore decrypts a keystore file written by SaveToKeystore.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file keystoreFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("crypto: decode keystore: %w", err)
	}
	if file.Version != keystoreVersion {
		return nil, fmt.Errorf("crypto: unsupported keystore version %d", file.Version)
	}
	seed, err := keystore.DecryptDataV3(file.Crypto, passphrase)
	if err != nil {
		return nil, err
	}
	key, err := PrivateKeyFromSeed(seed)
	if err != nil {
		return nil, err
	}
	if key.Identity() != file.Identity {
		return nil, errors.New("crypto: keystore identity does not match decrypted key")
	}
	return key, nil
}
