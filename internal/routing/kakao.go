// Package routing resolves addresses and driving durations through the Kakao
// Local and KakaoMobility APIs.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"shootday/internal/schedule"
)

const (
	DefaultLocalURL = "https://dapi.kakao.com"
	DefaultNaviURL  = "https://apis-navi.kakaomobility.com"

	geocodeMemoSize = 1024
)

// ErrNoResult is returned when an address has no geocoding match.
var ErrNoResult = errors.New("no geocode result")

// Coordinates are WGS84 degrees.
type Coordinates struct {
	Lon float64
	Lat float64
}

// Kakao implements the travel-time provider. It is safe for concurrent use.
type Kakao struct {
	session  *http.Client
	apiKey   string
	localURL string
	naviURL  string
	geocodes *lru.Cache[string, Coordinates]
}

// NewKakao builds a provider. A nil client gets a plain http.Client; callers
// bound each lookup with the context instead of a client timeout.
func NewKakao(apiKey string, client *http.Client) (*Kakao, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("kakao api key is empty")
	}
	if client == nil {
		client = &http.Client{}
	}
	memo, err := lru.New[string, Coordinates](geocodeMemoSize)
	if err != nil {
		return nil, fmt.Errorf("geocode memo: %w", err)
	}
	return &Kakao{
		session:  client,
		apiKey:   strings.TrimSpace(apiKey),
		localURL: DefaultLocalURL,
		naviURL:  DefaultNaviURL,
		geocodes: memo,
	}, nil
}

// WithBaseURLs points the provider at other hosts, e.g. a proxy.
func (k *Kakao) WithBaseURLs(localURL, naviURL string) *Kakao {
	k.localURL = strings.TrimRight(localURL, "/")
	k.naviURL = strings.TrimRight(naviURL, "/")
	return k
}

// TravelMinutes geocodes both addresses and returns the recommended driving
// duration in whole minutes, at least 1. Every failure wraps
// schedule.ErrEstimationFailure.
func (k *Kakao) TravelMinutes(ctx context.Context, origin, destination string) (int, error) {
	from, err := k.Geocode(ctx, origin)
	if err != nil {
		return 0, fmt.Errorf("%w: origin: %w", schedule.ErrEstimationFailure, err)
	}
	to, err := k.Geocode(ctx, destination)
	if err != nil {
		return 0, fmt.Errorf("%w: destination: %w", schedule.ErrEstimationFailure, err)
	}
	minutes, err := k.Route(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("%w: route: %w", schedule.ErrEstimationFailure, err)
	}
	return minutes, nil
}

type addressResponse struct {
	Documents []struct {
		X string `json:"x"`
		Y string `json:"y"`
	} `json:"documents"`
}

// Geocode resolves a free-text address to coordinates. Successful lookups are
// memoized in process.
func (k *Kakao) Geocode(ctx context.Context, address string) (Coordinates, error) {
	norm := strings.Join(strings.Fields(address), " ")
	if norm == "" {
		return Coordinates{}, errors.New("address must not be empty")
	}
	if c, ok := k.geocodes.Get(norm); ok {
		return c, nil
	}

	req, err := k.newRequest(ctx, k.localURL+"/v2/local/search/address.json", url.Values{
		"query": {norm},
		"size":  {"1"},
	})
	if err != nil {
		return Coordinates{}, err
	}
	resp, err := k.do(req)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocode %q: %w", norm, err)
	}
	defer resp.Body.Close()

	var decoded addressResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Coordinates{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(decoded.Documents) == 0 {
		return Coordinates{}, fmt.Errorf("%q: %w", norm, ErrNoResult)
	}

	lon, errX := strconv.ParseFloat(decoded.Documents[0].X, 64)
	lat, errY := strconv.ParseFloat(decoded.Documents[0].Y, 64)
	if errX != nil || errY != nil {
		return Coordinates{}, fmt.Errorf("invalid coordinates for %q", norm)
	}
	c := Coordinates{Lon: lon, Lat: lat}
	k.geocodes.Add(norm, c)
	return c, nil
}

type directionsResponse struct {
	Routes []struct {
		ResultCode int    `json:"result_code"`
		ResultMsg  string `json:"result_msg"`
		Summary    *struct {
			Duration float64 `json:"duration"`
		} `json:"summary"`
	} `json:"routes"`
}

// Route returns the recommended car route duration between two points.
func (k *Kakao) Route(ctx context.Context, from, to Coordinates) (int, error) {
	req, err := k.newRequest(ctx, k.naviURL+"/v1/directions", url.Values{
		"origin":       {formatPoint(from)},
		"destination":  {formatPoint(to)},
		"priority":     {"RECOMMEND"},
		"summary":      {"false"},
		"alternatives": {"false"},
		"road_details": {"false"},
	})
	if err != nil {
		return 0, err
	}
	resp, err := k.do(req)
	if err != nil {
		return 0, fmt.Errorf("directions: %w", err)
	}
	defer resp.Body.Close()

	var decoded directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("decode directions response: %w", err)
	}
	if len(decoded.Routes) == 0 {
		return 0, errors.New("no routes")
	}
	route := decoded.Routes[0]
	if route.ResultCode != 0 {
		return 0, fmt.Errorf("route result %d: %s", route.ResultCode, route.ResultMsg)
	}
	if route.Summary == nil {
		return 0, errors.New("route without summary")
	}
	return toMinutes(time.Duration(route.Summary.Duration * float64(time.Second))), nil
}

// formatPoint renders "x,y", which is lon,lat.
func formatPoint(c Coordinates) string {
	return strconv.FormatFloat(c.Lon, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lat, 'f', -1, 64)
}

func toMinutes(d time.Duration) int {
	m := int(math.Round(d.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}
