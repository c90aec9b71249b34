package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase"
)

// AddressDirectoryRepository implements usecase.AddressDirectory on the
// provisioning tables. Address provisioning itself happens outside this
// service; this side only reads.
type AddressDirectoryRepository struct {
	pool dbPool
}

// NewAddressDirectoryRepository creates a new AddressDirectoryRepository.
func NewAddressDirectoryRepository(pool *pgxpool.Pool) *AddressDirectoryRepository {
	return &AddressDirectoryRepository{pool: pool}
}

// DepositAddresses maps lowercase deposit address to owning user id, capped
// at limit entries.
func (r *AddressDirectoryRepository) DepositAddresses(ctx context.Context, chain string, limit int) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT address, user_id FROM deposit_addresses
		WHERE chain = $1 AND enabled
		ORDER BY created_at
		LIMIT $2`, chain, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addresses := make(map[string]string)
	for rows.Next() {
		var address, userID string
		if err := rows.Scan(&address, &userID); err != nil {
			return nil, err
		}
		addresses[strings.ToLower(address)] = userID
	}

	return addresses, rows.Err()
}

// NativeAsset returns the chain's native asset, or nil when the chain has no
// enabled native asset configured.
func (r *AddressDirectoryRepository) NativeAsset(ctx context.Context, chain string) (*usecase.Asset, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT symbol, COALESCE(contract_address, ''), decimals, enabled
		FROM chain_assets
		WHERE chain = $1 AND is_native AND enabled`, chain)

	asset, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAssetNotConfigured
		}
		return nil, err
	}

	return asset, nil
}

// TokenAssets returns the chain's enabled token assets.
func (r *AddressDirectoryRepository) TokenAssets(ctx context.Context, chain string) ([]usecase.Asset, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT symbol, COALESCE(contract_address, ''), decimals, enabled
		FROM chain_assets
		WHERE chain = $1 AND NOT is_native AND enabled
		ORDER BY symbol`, chain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []usecase.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}

	return assets, rows.Err()
}

func scanAsset(row pgx.Row) (*usecase.Asset, error) {
	var asset usecase.Asset
	err := row.Scan(&asset.Symbol, &asset.ContractAddress, &asset.Decimals, &asset.Enabled)
	if err != nil {
		return nil, err
	}
	asset.ContractAddress = strings.ToLower(asset.ContractAddress)
	return &asset, nil
}
