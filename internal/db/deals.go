// Package db keeps a DuckDB snapshot of the last loaded deal collection so the
// service can start without reaching GeoServer.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-landmatrix/internal/deal"
)

// DealsTable is the snapshot table name.
const DealsTable = "deals"

const createDeals = `CREATE TABLE IF NOT EXISTS deals (
	seq             INTEGER,
	id              VARCHAR,
	country         VARCHAR,
	region_name     VARCHAR,
	country_code    VARCHAR,
	surface_ha      DOUBLE,
	created_year    INTEGER,
	crops           VARCHAR,
	crop_oil_palm   BOOLEAN,
	crop_soya_beans BOOLEAN,
	crop_sugar_cane BOOLEAN,
	negative_impact BOOLEAN,
	lon             DOUBLE,
	lat             DOUBLE
)`

const insertDeal = `INSERT INTO deals VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectDeals = `SELECT id, country, region_name, country_code, surface_ha, created_year,
	crops, crop_oil_palm, crop_soya_beans, crop_sugar_cane, negative_impact, lon, lat
FROM deals ORDER BY seq`

// SaveDeals replaces the snapshot with records, preserving their order.
func SaveDeals(ctx context.Context, conn *sql.DB, records []deal.Record) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createDeals); err != nil {
		return fmt.Errorf("create deals table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM deals"); err != nil {
		return fmt.Errorf("clear deals table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertDeal)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		surface := sql.NullFloat64{}
		if r.Surface != nil {
			surface = sql.NullFloat64{Float64: *r.Surface, Valid: true}
		}
		year := sql.NullInt64{}
		if r.Year != nil {
			year = sql.NullInt64{Int64: int64(*r.Year), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			i, r.ID, r.Country, r.RegionName, r.CountryCode, surface, year,
			r.Crops.Description, r.Crops.OilPalm, r.Crops.SoyaBeans, r.Crops.SugarCane,
			r.NegativeSocialImpact, r.Location.Lon(), r.Location.Lat(),
		); err != nil {
			return fmt.Errorf("insert deal %q: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// LoadDeals reads the snapshot back. A missing table yields an error.
func LoadDeals(ctx context.Context, conn *sql.DB) ([]deal.Record, error) {
	rows, err := conn.QueryContext(ctx, selectDeals)
	if err != nil {
		return nil, fmt.Errorf("query deals: %w", err)
	}
	defer rows.Close()

	records := []deal.Record{}
	for rows.Next() {
		var (
			r                          deal.Record
			country, region, code, crp sql.NullString
			surface, lon, lat          sql.NullFloat64
			year                       sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &country, &region, &code, &surface, &year,
			&crp, &r.Crops.OilPalm, &r.Crops.SoyaBeans, &r.Crops.SugarCane,
			&r.NegativeSocialImpact, &lon, &lat); err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		r.Country = country.String
		r.RegionName = region.String
		r.CountryCode = code.String
		r.Crops.Description = crp.String
		if surface.Valid {
			r.Surface = deal.Float(surface.Float64)
		}
		if year.Valid {
			r.Year = deal.Int(int(year.Int64))
		}
		r.Location = orb.Point{lon.Float64, lat.Float64}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Tables lists the tables of the database.
func Tables(ctx context.Context, conn *sql.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
