package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/domain/repository"
	"github.com/openkaarten-service/internal/pkg/errors"
)

const featureColumns = `id, dataset_id, title, geometry, meta, thumbnail, created_at`

type featureRow struct {
	ID        uuid.UUID `db:"id"`
	DatasetID int64     `db:"dataset_id"`
	Title     string    `db:"title"`
	Geometry  string    `db:"geometry"`
	Meta      []byte    `db:"meta"`
	Thumbnail []byte    `db:"thumbnail"`
	CreatedAt time.Time `db:"created_at"`
}

func (r featureRow) toDomain() (*domain.Feature, error) {
	f := &domain.Feature{
		ID:         r.ID,
		DatasetID:  r.DatasetID,
		Title:      r.Title,
		Geometry:   json.RawMessage(r.Geometry),
		Properties: map[string]interface{}{},
		CreatedAt:  r.CreatedAt,
	}

	if len(r.Meta) > 0 {
		meta := map[string]interface{}{}
		if err := json.Unmarshal(r.Meta, &meta); err != nil {
			return nil, fmt.Errorf("meta: %w", err)
		}
		f.Properties = domain.PropertiesFromMeta(meta)
		f.Lat = metaFloat(meta, domain.MetaLatitude)
		f.Lon = metaFloat(meta, domain.MetaLongitude)
		f.Address = domain.AddressFromMeta(meta)
	}

	if len(r.Thumbnail) > 0 && string(r.Thumbnail) != "null" {
		var thumb domain.Thumbnail
		if err := json.Unmarshal(r.Thumbnail, &thumb); err != nil {
			return nil, fmt.Errorf("thumbnail: %w", err)
		}
		f.Thumbnail = &thumb
	}
	return f, nil
}

func metaFloat(meta map[string]interface{}, key string) *float64 {
	if v, ok := meta[key].(float64); ok {
		return &v
	}
	return nil
}

type featureRepository struct {
	pg     *DB
	db     *sqlx.DB
	logger *zap.Logger
}

func NewFeatureRepository(db *DB) repository.FeatureRepository {
	return &featureRepository{
		pg:     db,
		db:     db.DB,
		logger: db.logger,
	}
}

func (r *featureRepository) ListByDataset(ctx context.Context, datasetID int64) ([]*domain.Feature, error) {
	query := `SELECT ` + featureColumns + `
		FROM features
		WHERE dataset_id = $1
		ORDER BY title ASC, id ASC`

	var rows []featureRow
	if err := r.db.SelectContext(ctx, &rows, query, datasetID); err != nil {
		r.logger.Error("Failed to list features",
			zap.Int64("dataset_id", datasetID),
			zap.Error(err))
		return nil, errors.ErrDatabaseError.Wrap(err)
	}

	features := make([]*domain.Feature, 0, len(rows))
	for _, row := range rows {
		f, err := row.toDomain()
		if err != nil {
			r.logger.Error("Failed to decode feature", zap.String("id", row.ID.String()), zap.Error(err))
			return nil, errors.ErrDatabaseError.Wrap(err)
		}
		features = append(features, f)
	}
	return features, nil
}

func (r *featureRepository) GetByID(ctx context.Context, id string) (*domain.Feature, error) {
	featureID, err := uuid.Parse(id)
	if err != nil {
		return nil, errors.ErrFeatureNotFound
	}

	var row featureRow
	err = r.db.GetContext(ctx, &row, `SELECT `+featureColumns+` FROM features WHERE id = $1`, featureID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrFeatureNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get feature by ID", zap.String("id", id), zap.Error(err))
		return nil, errors.ErrDatabaseError.Wrap(err)
	}

	f, err := row.toDomain()
	if err != nil {
		return nil, errors.ErrDatabaseError.Wrap(err)
	}
	return f, nil
}

// ReplaceForDataset заменяет features датасета в одной транзакции.
// Строка датасета блокируется FOR UPDATE, поэтому параллельные замены одного
// датасета выполняются последовательно, а читатели видят старый набор до COMMIT.
func (r *featureRepository) ReplaceForDataset(
	ctx context.Context,
	datasetID int64,
	features []*domain.Feature,
	mode domain.SyncMode,
	syncedAt time.Time,
) error {
	err := r.pg.InTx(ctx, func(tx *sqlx.Tx) error {
		var locked int64
		err := tx.GetContext(ctx, &locked, `SELECT id FROM datasets WHERE id = $1 FOR UPDATE`, datasetID)
		if err == sql.ErrNoRows {
			return errors.ErrDatasetNotFound
		}
		if err != nil {
			return r.txError("lock dataset", datasetID, err)
		}

		if mode != domain.SyncModeUpsert {
			if _, err := tx.ExecContext(ctx, `DELETE FROM features WHERE dataset_id = $1`, datasetID); err != nil {
				return r.txError("delete features", datasetID, err)
			}
		}

		ids, err := r.insertFeatures(ctx, tx, datasetID, features, mode, syncedAt)
		if err != nil {
			return err
		}

		if mode == domain.SyncModeUpsert {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM features WHERE dataset_id = $1 AND NOT (id::text = ANY($2))`,
				datasetID, pq.Array(ids))
			if err != nil {
				return r.txError("prune features", datasetID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE datasets SET last_synced_at = $2 WHERE id = $1`, datasetID, syncedAt); err != nil {
			return r.txError("update last_synced_at", datasetID, err)
		}
		return nil
	})
	if err != nil {
		if _, ok := errors.As(err); !ok {
			return r.txError("transaction", datasetID, err)
		}
		return err
	}

	r.logger.Info("Dataset features replaced",
		zap.Int64("dataset_id", datasetID),
		zap.String("mode", string(mode)),
		zap.Int("count", len(features)))
	return nil
}

// DeleteByDataset очищает материализованные features датасета, например
// при переводе URL-датасета в режим live
func (r *featureRepository) DeleteByDataset(ctx context.Context, datasetID int64) error {
	var deleted int64
	err := r.pg.InTx(ctx, func(tx *sqlx.Tx) error {
		var locked int64
		err := tx.GetContext(ctx, &locked, `SELECT id FROM datasets WHERE id = $1 FOR UPDATE`, datasetID)
		if err == sql.ErrNoRows {
			return errors.ErrDatasetNotFound
		}
		if err != nil {
			return r.txError("lock dataset", datasetID, err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM features WHERE dataset_id = $1`, datasetID)
		if err != nil {
			return r.txError("delete features", datasetID, err)
		}
		deleted, _ = res.RowsAffected()

		if _, err := tx.ExecContext(ctx, `UPDATE datasets SET last_synced_at = NULL WHERE id = $1`, datasetID); err != nil {
			return r.txError("reset last_synced_at", datasetID, err)
		}
		return nil
	})
	if err != nil {
		if _, ok := errors.As(err); !ok {
			return r.txError("transaction", datasetID, err)
		}
		return err
	}

	r.logger.Info("Dataset features deleted",
		zap.Int64("dataset_id", datasetID),
		zap.Int64("count", deleted))
	return nil
}

func (r *featureRepository) insertFeatures(
	ctx context.Context,
	tx *sqlx.Tx,
	datasetID int64,
	features []*domain.Feature,
	mode domain.SyncMode,
	syncedAt time.Time,
) ([]string, error) {
	insert := `
		INSERT INTO features (id, dataset_id, title, geometry, meta, thumbnail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if mode == domain.SyncModeUpsert {
		// thumbnail привязан к стабильному id и переживает синхронизацию
		insert += `
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			geometry = EXCLUDED.geometry,
			meta = EXCLUDED.meta`
	}

	stmt, err := tx.PreparexContext(ctx, insert)
	if err != nil {
		return nil, r.txError("prepare insert", datasetID, err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(features))
	for _, f := range features {
		f.DatasetID = datasetID
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = syncedAt
		}

		meta, err := json.Marshal(f.Meta())
		if err != nil {
			return nil, r.txError("marshal meta", datasetID, err)
		}
		thumb, err := thumbnailValue(f.Thumbnail)
		if err != nil {
			return nil, r.txError("marshal thumbnail", datasetID, err)
		}

		if _, err := stmt.ExecContext(ctx, f.ID, datasetID, f.Title, string(f.Geometry), string(meta), thumb, f.CreatedAt); err != nil {
			return nil, r.txError("insert feature", datasetID, err)
		}
		ids = append(ids, f.ID.String())
	}
	return ids, nil
}

// thumbnailValue возвращает JSONB-значение или NULL
func thumbnailValue(t *domain.Thumbnail) (interface{}, error) {
	if t == nil {
		return nil, nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *featureRepository) txError(step string, datasetID int64, err error) error {
	r.logger.Error("Failed to replace features",
		zap.String("step", step),
		zap.Int64("dataset_id", datasetID),
		zap.Error(err))
	return errors.ErrDatabaseError.Wrap(fmt.Errorf("%s: %w", step, err))
}

func (r *featureRepository) UpdateGeometry(ctx context.Context, f *domain.Feature) error {
	meta, err := json.Marshal(f.Meta())
	if err != nil {
		return errors.ErrDatabaseError.Wrap(err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE features SET geometry = $2, meta = $3 WHERE id = $1`,
		f.ID, string(f.Geometry), string(meta))
	if err != nil {
		r.logger.Error("Failed to update feature geometry", zap.String("id", f.ID.String()), zap.Error(err))
		return errors.ErrDatabaseError.Wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrFeatureNotFound
	}
	return nil
}

func (r *featureRepository) UpdateThumbnail(ctx context.Context, id string, thumbnail *domain.Thumbnail) error {
	featureID, err := uuid.Parse(id)
	if err != nil {
		return errors.ErrFeatureNotFound
	}

	value, err := thumbnailValue(thumbnail)
	if err != nil {
		return errors.ErrDatabaseError.Wrap(err)
	}

	res, err := r.db.ExecContext(ctx, `UPDATE features SET thumbnail = $2 WHERE id = $1`, featureID, value)
	if err != nil {
		r.logger.Error("Failed to update feature thumbnail", zap.String("id", id), zap.Error(err))
		return errors.ErrDatabaseError.Wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrFeatureNotFound
	}
	return nil
}

func (r *featureRepository) CountByDataset(ctx context.Context, datasetID int64) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM features WHERE dataset_id = $1`, datasetID); err != nil {
		r.logger.Error("Failed to count features", zap.Int64("dataset_id", datasetID), zap.Error(err))
		return 0, errors.ErrDatabaseError.Wrap(err)
	}
	return count, nil
}
