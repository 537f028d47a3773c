// Package listing reads and updates apartment listings that are missing
// coordinates.
package listing

import "strings"

// Row is one listing selected for geocoding. Text fields are nil when the
// column is NULL. At fetch time Latitude or Longitude (or both) is nil.
type Row struct {
	ID        int64
	Name      *string
	Address   *string
	City      *string
	State     *string
	ZipCode   *string
	Latitude  *float64
	Longitude *float64
}

// querySeparator joins address parts in a geocoder query.
const querySeparator = ", "

// BuildQuery concatenates name, address, city, state and zip code, in that
// order, skipping fields that are NULL or empty. It returns "" when no field
// has a value.
func BuildQuery(r Row) string {
	parts := make([]string, 0, 5)
	for _, f := range []*string{r.Name, r.Address, r.City, r.State, r.ZipCode} {
		if f != nil && *f != "" {
			parts = append(parts, *f)
		}
	}
	return strings.Join(parts, querySeparator)
}
