package testhelpers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/openkaarten-service/internal/domain"
)

// LoadFixtures выполняет SQL-файлы фикстур
func LoadFixtures(db *sql.DB, fixturesPath string, files []string) error {
	for _, file := range files {
		content, err := os.ReadFile(filepath.Join(fixturesPath, file))
		if err != nil {
			return fmt.Errorf("read fixture %s: %w", file, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("load fixture %s: %w", file, err)
		}
	}
	return nil
}

// NewDataset возвращает URL-датасет с заполненными значениями по умолчанию
func NewDataset(slug string) *domain.Dataset {
	ds := &domain.Dataset{
		Title:         "Dataset " + slug,
		Slug:          slug,
		SourceKind:    domain.SourceURL,
		SourceRef:     "https://data.example.nl/" + slug + ".geojson",
		TitleTemplate: "{name}",
		FieldSchema: []domain.FieldDef{
			{SourceKey: "name", DisplayLabel: "Name", ValueType: domain.ValueText, Show: true},
		},
	}
	ds.ApplyDefaults()
	return ds
}

// NewPointFeature возвращает Point-feature с заданным заголовком
func NewPointFeature(title string, lon, lat float64) *domain.Feature {
	geometry, _ := json.Marshal(map[string]interface{}{
		"type":       "Feature",
		"properties": map[string]interface{}{},
		"geometry": map[string]interface{}{
			"type":        "Point",
			"coordinates": []float64{lon, lat},
		},
	})
	return &domain.Feature{
		Title:      title,
		Geometry:   geometry,
		Properties: map[string]interface{}{"name": title},
		Lat:        &lat,
		Lon:        &lon,
	}
}

// InsertRawFeature вставляет feature в обход репозитория, например с
// поврежденной геометрией
func InsertRawFeature(ctx context.Context, db *sql.DB, datasetID int64, title, geometry string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := db.ExecContext(ctx,
		`INSERT INTO features (id, dataset_id, title, geometry) VALUES ($1, $2, $3, $4)`,
		id, datasetID, title, geometry)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert raw feature: %w", err)
	}
	return id, nil
}
