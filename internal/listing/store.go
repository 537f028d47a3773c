package listing

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-geocoder/internal/db"
)

// Table is the listings table the backfill reads and updates.
const Table = "public.apartment_properties_listings"

const (
	selectMissingCoords = `
		SELECT id, name, address, city, state, zip_code, latitude, longitude
		FROM ` + Table + `
		WHERE latitude IS NULL OR longitude IS NULL
		ORDER BY id`

	updateCoords = `
		UPDATE ` + Table + `
		SET latitude = $1, longitude = $2, updated_at = $3
		WHERE id = $4`

	countStatus = `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE latitude IS NOT NULL AND longitude IS NOT NULL) AS with_coords
		FROM ` + Table
)

// Status summarises coordinate coverage of the listings table.
type Status struct {
	Total      int64
	WithCoords int64
}

// Missing is the number of listings lacking at least one coordinate.
func (s Status) Missing() int64 { return s.Total - s.WithCoords }

// FetchMissingCoords returns every listing whose latitude or longitude is
// NULL, ordered by id. A positive limit caps the number of rows.
func FetchMissingCoords(ctx context.Context, q db.Querier, limit int) ([]Row, error) {
	query := selectMissingCoords
	var args []any
	if limit > 0 {
		query += "\n\t\tLIMIT $1"
		args = append(args, limit)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "listing: query missing coordinates")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Name, &r.Address, &r.City, &r.State, &r.ZipCode, &r.Latitude, &r.Longitude); err != nil {
			return nil, eris.Wrap(err, "listing: scan row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "listing: iterate rows")
	}

	return out, nil
}

// UpdateCoords sets latitude, longitude and updated_at for one listing.
func UpdateCoords(ctx context.Context, e db.Execer, id int64, lat, lng float64, at time.Time) error {
	_, err := e.Exec(ctx, updateCoords, lat, lng, at, id)
	if err != nil {
		return eris.Wrapf(err, "listing: update coordinates for id %d", id)
	}
	return nil
}

// CountStatus counts listings with and without coordinates.
func CountStatus(ctx context.Context, q db.Querier) (Status, error) {
	var st Status
	if err := q.QueryRow(ctx, countStatus).Scan(&st.Total, &st.WithCoords); err != nil {
		return Status{}, eris.Wrap(err, "listing: count status")
	}
	return st, nil
}
