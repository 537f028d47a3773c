package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// Google status codes the client distinguishes.
const (
	StatusOK                = "OK"
	StatusZeroResults       = "ZERO_RESULTS"
	StatusOverQueryLimit    = "OVER_QUERY_LIMIT"
	StatusResourceExhausted = "RESOURCE_EXHAUSTED"
)

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	Geometry struct {
		Location *struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// Geocode geocodes a single query using the Google Geocoding API.
func (g *geocoder) Geocode(ctx context.Context, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return &Result{Matched: false}, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Err: eris.Wrap(err, "rate limit wait")}
	}

	params := url.Values{
		"address": {query},
		"key":     {g.apiKey},
	}

	reqURL := g.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &TransportError{Err: eris.Wrap(err, "build request")}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: eris.Wrap(redactKey(err, g.apiKey), "request")}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{
			Err:        eris.Errorf("google returned status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: eris.Wrap(err, "read body"), StatusCode: resp.StatusCode}
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, &TransportError{Err: eris.Wrap(err, "parse response"), StatusCode: resp.StatusCode}
	}

	return interpret(googleResp)
}

// interpret maps a decoded provider response to a Result or error.
func interpret(googleResp googleGeocodeResponse) (*Result, error) {
	switch googleResp.Status {
	case StatusOK:
		if len(googleResp.Results) == 0 {
			return &Result{Matched: false, Status: googleResp.Status, Message: googleResp.ErrorMessage}, nil
		}
	case StatusOverQueryLimit, StatusResourceExhausted:
		return nil, eris.Wrapf(ErrQuotaExceeded, "google status %s", googleResp.Status)
	default:
		return &Result{Matched: false, Status: googleResp.Status, Message: googleResp.ErrorMessage}, nil
	}

	first := googleResp.Results[0]
	loc := first.Geometry.Location
	if loc == nil {
		return nil, &TransportError{Err: eris.New("parse response: first result has no geometry.location")}
	}
	if loc.Lat == nil || loc.Lng == nil {
		return nil, &TransportError{Err: eris.New("parse response: geometry.location is missing lat or lng")}
	}
	lat, lng := *loc.Lat, *loc.Lng
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, &TransportError{Err: eris.Errorf("parse response: coordinates out of range (%f, %f)", lat, lng)}
	}

	return &Result{
		Latitude:         lat,
		Longitude:        lng,
		Status:           googleResp.Status,
		Quality:          googleLocationTypeToQuality(first.Geometry.LocationType),
		FormattedAddress: first.FormattedAddress,
		Matched:          true,
	}, nil
}

// redactKey strips the API key from errors that echo the request URL.
func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return eris.New(strings.ReplaceAll(err.Error(), key, "REDACTED"))
}

// googleLocationTypeToQuality maps Google's location_type to our quality taxonomy.
func googleLocationTypeToQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	case "APPROXIMATE":
		return "approximate"
	default:
		return "approximate"
	}
}
