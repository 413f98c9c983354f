package testhelpers

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/domain/repository"
	"github.com/openkaarten-service/internal/repository/postgres"
)

func NewDBForTest(db *sqlx.DB, logger *zap.Logger) *postgres.DB {
	return postgres.NewDBForTest(db, logger)
}

func NewDatasetRepositoryForTest(db *sqlx.DB, logger *zap.Logger) repository.DatasetRepository {
	return postgres.NewDatasetRepository(NewDBForTest(db, logger))
}

func NewFeatureRepositoryForTest(db *sqlx.DB, logger *zap.Logger) repository.FeatureRepository {
	return postgres.NewFeatureRepository(NewDBForTest(db, logger))
}
