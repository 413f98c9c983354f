package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/config"
	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/domain/repository"
	"github.com/openkaarten-service/internal/pkg/errors"
)

type client struct {
	httpClient   *http.Client
	baseURL      string
	userAgent    string
	email        string
	countryCodes string
	logger       *zap.Logger
}

// place - элемент ответа /search; координаты приходят строками
type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewClient создает геокодер поверх Nominatim /search
func NewClient(cfg *config.GeocoderConfig, logger *zap.Logger) repository.Geocoder {
	return &client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:    cfg.UserAgent,
		email:        cfg.Email,
		countryCodes: cfg.CountryCodes,
		logger:       logger,
	}
}

// Geocode возвращает первое совпадение для адреса
func (c *client) Geocode(ctx context.Context, query string) (*domain.GeocodeResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewValidation("address", "address cannot be empty")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")
	if c.countryCodes != "" {
		params.Set("countrycodes", c.countryCodes)
	}
	if c.email != "" {
		params.Set("email", c.email)
	}
	endpoint := c.baseURL + "/search?" + params.Encode()

	c.logger.Debug("Calling Nominatim search", zap.String("query", query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewGeocoderError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to execute geocoder request", zap.Error(err))
		return nil, errors.NewGeocoderError(fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("Nominatim returned error",
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", string(body)))
		return nil, errors.NewGeocoderError(fmt.Errorf("nominatim status %d", resp.StatusCode))
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		c.logger.Error("Failed to decode geocoder response", zap.Error(err))
		return nil, errors.NewGeocoderError(fmt.Errorf("failed to decode response: %w", err))
	}
	if len(places) == 0 {
		return nil, errors.ErrAddressNotFound.WithDetails(map[string]interface{}{
			"address": query,
		})
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, errors.NewGeocoderError(fmt.Errorf("invalid latitude %q", places[0].Lat))
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, errors.NewGeocoderError(fmt.Errorf("invalid longitude %q", places[0].Lon))
	}

	c.logger.Debug("Address geocoded",
		zap.String("query", query),
		zap.Float64("lat", lat),
		zap.Float64("lon", lon))

	return &domain.GeocodeResult{
		Lat:         lat,
		Lon:         lon,
		DisplayName: places[0].DisplayName,
	}, nil
}
