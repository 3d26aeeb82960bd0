package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"nftescrow/cmd/internal/passphrase"
	"nftescrow/core/genesis"
	"nftescrow/crypto"
)

const keyPassEnv = "NFTESCROW_KEY_PASS"

var (
	keyPassphrase    = passphrase.NewSource(keyPassEnv).Get
	newKeyPassphrase = passphrase.NewSource(keyPassEnv).WithPrompt("New keystore passphrase: ").Get
	loadKey          = loadKeystore
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func loadKeystore(path string) (*crypto.PrivateKey, error) {
	pass, err := keyPassphrase()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("keystore %s not found; run listing-cli keygen first", path)
		}
		return nil, err
	}
	return key, nil
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "", "keystore file to create")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	path := strings.TrimSpace(*out)
	if path == "" {
		return printError(stderr, "--out is required")
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return printError(stderr, fmt.Sprintf("%s already exists; pass --force to overwrite", path))
	}
	pass, err := newKeyPassphrase()
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	if err := crypto.SaveToKeystore(path, key, pass); err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintf(stdout, "Identity: %s\n", key.Identity())
	fmt.Fprintf(stdout, "Keystore: %s\n", path)
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	keyPath := fs.String("key", "", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*keyPath) == "" {
		return printError(stderr, "--key is required")
	}
	key, err := loadKey(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	id := key.Identity()
	encoded, err := genesis.EncodeBech32Account(id)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintf(stdout, "Identity: %s\n", id)
	fmt.Fprintf(stdout, "Bech32:   %s\n", encoded)
	return 0
}
