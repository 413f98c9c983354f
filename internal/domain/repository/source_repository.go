package repository

import (
	"context"

	"github.com/openkaarten-service/internal/domain"
)

// SourceFetcher получает сырые байты источника датасета (файл или URL)
type SourceFetcher interface {
	Fetch(ctx context.Context, ds *domain.Dataset) ([]byte, error)
}
