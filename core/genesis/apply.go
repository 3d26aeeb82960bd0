package genesis

import (
	"fmt"

	"nftescrow/core/state"
	"nftescrow/core/types"
	"nftescrow/native/token"
)

// Apply writes the genesis accounts and issued assets into the state held by
// manager. Asset and holding accounts are funded at the rent exempt minimum.
// The caller is responsible for committing the trie.
func Apply(spec *GenesisSpec, manager *state.Manager, rent types.Rent) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if manager == nil {
		return fmt.Errorf("state manager must not be nil")
	}
	for _, acc := range spec.accounts {
		if err := manager.PutAccount(acc.address, &types.Account{Lamports: acc.lamports}); err != nil {
			return fmt.Errorf("account %s: %w", acc.address, err)
		}
	}
	for _, entry := range spec.assets {
		holding, _, err := token.AssociatedHoldingAddress(entry.owner, entry.asset)
		if err != nil {
			return fmt.Errorf("asset %s: %w", entry.asset, err)
		}
		existing, err := manager.GetAccount(holding)
		if err != nil {
			return err
		}
		if existing.IsAllocated() {
			return fmt.Errorf("asset %s: holding %s already exists", entry.asset, holding)
		}
		record := &token.Asset{Supply: 1, Decimals: 0, Issuer: entry.issuer}
		if err := manager.PutAccount(entry.asset, &types.Account{
			Lamports: rent.MinimumBalance(token.AssetSize),
			Owner:    token.ProgramID,
			Data:     record.Encode(),
		}); err != nil {
			return fmt.Errorf("asset %s: %w", entry.asset, err)
		}
		minted := &token.Holding{Asset: entry.asset, Owner: entry.owner, Amount: 1}
		if err := manager.PutAccount(holding, &types.Account{
			Lamports: rent.MinimumBalance(token.HoldingSize),
			Owner:    token.ProgramID,
			Data:     minted.Encode(),
		}); err != nil {
			return fmt.Errorf("asset %s holding: %w", entry.asset, err)
		}
	}
	return nil
}
