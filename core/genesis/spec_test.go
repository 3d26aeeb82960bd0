package genesis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"nftescrow/core/state"
	"nftescrow/core/types"
	"nftescrow/crypto"
	"nftescrow/native/token"
	"nftescrow/storage"
	"nftescrow/storage/trie"
)

func identity(b byte) crypto.Identity {
	var id crypto.Identity
	for i := range id {
		id[i] = b
	}
	return id
}

func TestLoadGenesisSpecAndApply(t *testing.T) {
	seller := identity(1)
	buyer := identity(2)
	asset := identity(3)
	buyerBech, err := EncodeBech32Account(buyer)
	require.NoError(t, err)

	doc := "genesisTime: 2024-01-01T00:00:00Z\n" +
		"accounts:\n" +
		"  - address: " + seller.String() + "\n" +
		"    lamports: 50000\n" +
		"  - address: " + buyerBech + "\n" +
		"    lamports: 1500\n" +
		"assets:\n" +
		"  - asset: " + asset.String() + "\n" +
		"    owner: " + seller.String() + "\n"
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	spec, err := LoadGenesisSpec(path)
	require.NoError(t, err)
	require.Equal(t, int64(1704067200), spec.GenesisTimestamp().Unix())

	tr, err := trie.NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)
	manager := state.NewManager(tr)
	rent := types.DefaultRent()
	require.NoError(t, Apply(spec, manager, rent))

	acc, err := manager.GetAccount(buyer)
	require.NoError(t, err)
	require.Equal(t, uint64(1500), acc.Lamports)

	mint, err := manager.GetAccount(asset)
	require.NoError(t, err)
	require.Equal(t, token.ProgramID, mint.Owner)
	require.Equal(t, rent.MinimumBalance(token.AssetSize), mint.Lamports)
	decoded, err := token.DecodeAsset(mint.Data)
	require.NoError(t, err)
	require.Equal(t, uint64(1), decoded.Supply)
	require.Equal(t, seller, decoded.Issuer)

	holdingAddr, _, err := token.AssociatedHoldingAddress(seller, asset)
	require.NoError(t, err)
	holdingAcc, err := manager.GetAccount(holdingAddr)
	require.NoError(t, err)
	holding, err := token.DecodeHolding(holdingAcc.Data)
	require.NoError(t, err)
	require.Equal(t, uint64(1), holding.Amount)
	require.Equal(t, seller, holding.Owner)

	require.Error(t, Apply(spec, manager, rent), "re-applying must not mint a second holding")
}

func TestParseGenesisSpecRejectsInvalid(t *testing.T) {
	seller := identity(1).String()
	cases := map[string]string{
		"missing time":   "accounts: []\n",
		"unknown field":  "genesisTime: 2024-01-01T00:00:00Z\nvalidators: []\n",
		"zero lamports":  "genesisTime: 2024-01-01T00:00:00Z\naccounts:\n  - address: " + seller + "\n    lamports: 0\n",
		"bad address":    "genesisTime: 2024-01-01T00:00:00Z\naccounts:\n  - address: not-base58-0OIl\n    lamports: 5\n",
		"duplicate":      "genesisTime: 2024-01-01T00:00:00Z\naccounts:\n  - address: " + seller + "\n    lamports: 5\n  - address: " + seller + "\n    lamports: 6\n",
		"asset as owner": "genesisTime: 2024-01-01T00:00:00Z\naccounts:\n  - address: " + seller + "\n    lamports: 5\nassets:\n  - asset: " + seller + "\n    owner: " + seller + "\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGenesisSpec([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestBech32RoundTrip(t *testing.T) {
	id := identity(9)
	encoded, err := EncodeBech32Account(id)
	require.NoError(t, err)
	parsed, err := ParseAccount(encoded)
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	parsed, err = ParseAccount(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = ParseBech32Account("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	require.Error(t, err)
}
