package genesis

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"nftescrow/crypto"
)

// GenesisSpec describes the initial ledger contents.
type GenesisSpec struct {
	GenesisTime string        `yaml:"genesisTime"`
	Accounts    []AccountSpec `yaml:"accounts"`
	Assets      []AssetSpec   `yaml:"assets"`

	genesisTimestamp time.Time
	accounts         []account
	assets           []asset
}

// AccountSpec funds a wallet with lamports.
type AccountSpec struct {
	Address  string `yaml:"address"`
	Lamports uint64 `yaml:"lamports"`
}

// AssetSpec issues a single-unit asset into the owner's associated holding.
// Issuer defaults to the owner.
type AssetSpec struct {
	Asset  string `yaml:"asset"`
	Owner  string `yaml:"owner"`
	Issuer string `yaml:"issuer,omitempty"`
}

type account struct {
	address  crypto.Identity
	lamports uint64
}

type asset struct {
	asset  crypto.Identity
	owner  crypto.Identity
	issuer crypto.Identity
}

// LoadGenesisSpec reads and validates the YAML genesis file at path.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes a YAML document. Unknown fields are rejected.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

// GenesisTimestamp returns the parsed genesis time.
func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

func (s *GenesisSpec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	seen := make(map[crypto.Identity]string)
	claim := func(id crypto.Identity, label string) error {
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("%s: address already used by %s", label, prev)
		}
		seen[id] = label
		return nil
	}

	s.accounts = s.accounts[:0]
	for i, entry := range s.Accounts {
		label := fmt.Sprintf("accounts[%d]", i)
		addr, err := ParseAccount(entry.Address)
		if err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		if addr.IsZero() {
			return fmt.Errorf("%s: zero address is reserved", label)
		}
		if entry.Lamports == 0 {
			return fmt.Errorf("%s: lamports must be greater than zero", label)
		}
		if err := claim(addr, label); err != nil {
			return err
		}
		s.accounts = append(s.accounts, account{address: addr, lamports: entry.Lamports})
	}

	s.assets = s.assets[:0]
	for i, entry := range s.Assets {
		label := fmt.Sprintf("assets[%d]", i)
		id, err := ParseAccount(entry.Asset)
		if err != nil {
			return fmt.Errorf("%s: asset: %w", label, err)
		}
		owner, err := ParseAccount(entry.Owner)
		if err != nil {
			return fmt.Errorf("%s: owner: %w", label, err)
		}
		issuer := owner
		if strings.TrimSpace(entry.Issuer) != "" {
			if issuer, err = ParseAccount(entry.Issuer); err != nil {
				return fmt.Errorf("%s: issuer: %w", label, err)
			}
		}
		if id.IsZero() || owner.IsZero() {
			return fmt.Errorf("%s: zero address is reserved", label)
		}
		if err := claim(id, label); err != nil {
			return err
		}
		s.assets = append(s.assets, asset{asset: id, owner: owner, issuer: issuer})
	}
	return nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
