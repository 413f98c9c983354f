package repository

import (
	"context"

	"github.com/openkaarten-service/internal/domain"
)

// Geocoder определяет координаты по адресу. Адрес без результата -
// ErrAddressNotFound.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*domain.GeocodeResult, error)
}
