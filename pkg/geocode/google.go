package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"

	"golang.org/x/time/rate"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// GoogleProvider geocodes via the Google Geocoding API.
type GoogleProvider struct {
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Name implements Provider.
func (g *GoogleProvider) Name() string { return "google" }

// Geocode implements Provider. The raw, non-normalized address is sent to
// the API. A non-OK status or empty candidate list is an unmatched result,
// not an error; transport and decode failures are errors.
func (g *GoogleProvider) Geocode(ctx context.Context, address string) (*Result, error) {
	if g.apiKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{
		"address": {address},
		"key":     {g.apiKey},
	}

	reqURL := googleGeocodeURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: google returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	if googleResp.Status != "OK" || len(googleResp.Results) == 0 {
		return &Result{Matched: false, Source: "google"}, nil
	}

	loc := googleResp.Results[0].Geometry.Location
	return &Result{
		Lat:     loc.Lat,
		Lng:     loc.Lng,
		Matched: true,
		Source:  "google",
	}, nil
}
