// Package pgstore implements the store contracts on PostgreSQL via
// pgx. Shapes and surcharge conditions are stored as JSONB through the
// envelope codecs; containment and window arithmetic stay in the
// engine, so no geospatial extension is required.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/transferhub/farequote/internal/observability"
	"github.com/transferhub/farequote/internal/pricing"
	"github.com/transferhub/farequote/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

var (
	_ store.RegionStore  = (*Store)(nil)
	_ store.PriceStore   = (*Store)(nil)
	_ store.VehicleStore = (*Store)(nil)
)

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) ActiveRegions(ctx context.Context) ([]pricing.PriceRegion, error) {
	start := time.Now()
	const q = `
		SELECT id, name, tags, shape, active, description
		FROM price_regions
		WHERE active`
	rows, err := s.pool.Query(ctx, q)
	observability.ObserveStoreOp("pg_regions", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("query regions: %w", err)
	}
	defer rows.Close()

	var out []pricing.PriceRegion
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate regions: %w", err)
	}
	return out, nil
}

func (s *Store) Region(ctx context.Context, id string) (pricing.PriceRegion, error) {
	start := time.Now()
	const q = `
		SELECT id, name, tags, shape, active, description
		FROM price_regions
		WHERE id = $1`
	row := s.pool.QueryRow(ctx, q, id)
	r, err := scanRegion(row)
	observability.ObserveStoreOp("pg_region", err, time.Since(start).Seconds())
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.PriceRegion{}, fmt.Errorf("region %q: %w", id, store.ErrNotFound)
	}
	return r, err
}

func (s *Store) BasePrices(ctx context.Context, regionID string) ([]pricing.BasePrice, error) {
	start := time.Now()
	const q = `
		SELECT id, region_id, currency, vehicles, active, valid_from, valid_until
		FROM base_prices
		WHERE region_id = $1`
	rows, err := s.pool.Query(ctx, q, regionID)
	observability.ObserveStoreOp("pg_base_prices", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("query base prices: %w", err)
	}
	defer rows.Close()

	var out []pricing.BasePrice
	for rows.Next() {
		var (
			b        pricing.BasePrice
			vehicles []byte
		)
		if err := rows.Scan(&b.ID, &b.RegionID, &b.Currency, &vehicles, &b.Active, &b.ValidFrom, &b.ValidUntil); err != nil {
			return nil, fmt.Errorf("scan base price: %w", err)
		}
		if err := json.Unmarshal(vehicles, &b.Vehicles); err != nil {
			return nil, fmt.Errorf("decode vehicles for base price %s: %w", b.ID, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate base prices: %w", err)
	}
	return out, nil
}

func (s *Store) FixedPrices(ctx context.Context, originRegionID, destinationRegionID string) ([]pricing.FixedPrice, error) {
	start := time.Now()
	const q = `
		SELECT id, origin_region_id, destination_region_id, name, currency,
		       vehicles, priority, active, valid_from, valid_until, tags, created_at
		FROM fixed_prices
		WHERE origin_region_id = $1 AND destination_region_id = $2`
	rows, err := s.pool.Query(ctx, q, originRegionID, destinationRegionID)
	observability.ObserveStoreOp("pg_fixed_prices", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("query fixed prices: %w", err)
	}
	defer rows.Close()

	var out []pricing.FixedPrice
	for rows.Next() {
		var (
			f        pricing.FixedPrice
			vehicles []byte
		)
		if err := rows.Scan(
			&f.ID, &f.OriginRegionID, &f.DestinationRegionID, &f.Name, &f.Currency,
			&vehicles, &f.Priority, &f.Active, &f.ValidFrom, &f.ValidUntil, &f.Tags, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan fixed price: %w", err)
		}
		if err := json.Unmarshal(vehicles, &f.Vehicles); err != nil {
			return nil, fmt.Errorf("decode vehicles for fixed price %s: %w", f.ID, err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fixed prices: %w", err)
	}
	return out, nil
}

func (s *Store) Surcharges(ctx context.Context, regionID string) ([]pricing.Surcharge, error) {
	start := time.Now()
	const q = `
		SELECT id, region_id, name, condition, application, value::text,
		       currency, active, priority, valid_from, valid_until
		FROM surcharges
		WHERE region_id = $1`
	rows, err := s.pool.Query(ctx, q, regionID)
	observability.ObserveStoreOp("pg_surcharges", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("query surcharges: %w", err)
	}
	defer rows.Close()

	var out []pricing.Surcharge
	for rows.Next() {
		var (
			sc       pricing.Surcharge
			cond     []byte
			value    string
			currency *string
		)
		if err := rows.Scan(
			&sc.ID, &sc.RegionID, &sc.Name, &cond, &sc.Application, &value,
			&currency, &sc.Active, &sc.Priority, &sc.ValidFrom, &sc.ValidUntil,
		); err != nil {
			return nil, fmt.Errorf("scan surcharge: %w", err)
		}
		sc.Condition, err = pricing.UnmarshalCondition(cond)
		if err != nil {
			return nil, fmt.Errorf("decode condition for surcharge %s: %w", sc.ID, err)
		}
		sc.Value, err = decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("decode value for surcharge %s: %w", sc.ID, err)
		}
		if currency != nil {
			sc.Currency = *currency
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate surcharges: %w", err)
	}
	return out, nil
}

func (s *Store) Vehicle(ctx context.Context, id string) (pricing.Vehicle, error) {
	start := time.Now()
	const q = `
		SELECT id, display_name, max_passengers, max_luggage, COALESCE(image_url, '')
		FROM vehicles
		WHERE id = $1`
	var v pricing.Vehicle
	err := s.pool.QueryRow(ctx, q, id).Scan(&v.ID, &v.DisplayName, &v.MaxPassengers, &v.MaxLuggage, &v.ImageURL)
	observability.ObserveStoreOp("pg_vehicle", err, time.Since(start).Seconds())
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.Vehicle{}, fmt.Errorf("vehicle %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return pricing.Vehicle{}, fmt.Errorf("query vehicle: %w", err)
	}
	return v, nil
}

func scanRegion(row pgx.Row) (pricing.PriceRegion, error) {
	var (
		r     pricing.PriceRegion
		shape []byte
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Tags, &shape, &r.Active, &r.Description); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.PriceRegion{}, err
		}
		return pricing.PriceRegion{}, fmt.Errorf("scan region: %w", err)
	}
	s, err := pricing.UnmarshalShape(shape)
	if err != nil {
		return pricing.PriceRegion{}, fmt.Errorf("decode shape for region %s: %w", r.ID, err)
	}
	r.Shape = s
	return r, nil
}
