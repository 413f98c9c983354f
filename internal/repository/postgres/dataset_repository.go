package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/domain/repository"
	"github.com/openkaarten-service/internal/pkg/errors"
)

const datasetColumns = `
	id, title, slug, source_kind, source_ref, url_mode, sync_mode,
	field_schema, title_template, tooltip_template, marker_rule_field,
	marker_rules, default_marker_color, last_synced_at, created_at, updated_at`

// сортировка списка: параметр orderby -> колонка
var datasetOrderColumns = map[string]string{
	"id":       "id",
	"title":    "title",
	"slug":     "slug",
	"date":     "created_at",
	"modified": "updated_at",
}

type datasetRow struct {
	ID                 int64        `db:"id"`
	Title              string       `db:"title"`
	Slug               string       `db:"slug"`
	SourceKind         string       `db:"source_kind"`
	SourceRef          string       `db:"source_ref"`
	URLMode            string       `db:"url_mode"`
	SyncMode           string       `db:"sync_mode"`
	FieldSchema        []byte       `db:"field_schema"`
	TitleTemplate      string       `db:"title_template"`
	TooltipTemplate    []byte       `db:"tooltip_template"`
	MarkerRuleField    string       `db:"marker_rule_field"`
	MarkerRules        []byte       `db:"marker_rules"`
	DefaultMarkerColor string       `db:"default_marker_color"`
	LastSyncedAt       sql.NullTime `db:"last_synced_at"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
}

func (r datasetRow) toDomain() (*domain.Dataset, error) {
	ds := &domain.Dataset{
		ID:                 r.ID,
		Title:              r.Title,
		Slug:               r.Slug,
		SourceKind:         domain.SourceKind(r.SourceKind),
		SourceRef:          r.SourceRef,
		URLMode:            domain.URLMode(r.URLMode),
		SyncMode:           domain.SyncMode(r.SyncMode),
		TitleTemplate:      r.TitleTemplate,
		MarkerRuleField:    r.MarkerRuleField,
		DefaultMarkerColor: r.DefaultMarkerColor,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.LastSyncedAt.Valid {
		t := r.LastSyncedAt.Time
		ds.LastSyncedAt = &t
	}

	if err := unmarshalJSONB(r.FieldSchema, &ds.FieldSchema); err != nil {
		return nil, fmt.Errorf("field_schema: %w", err)
	}
	if err := unmarshalJSONB(r.TooltipTemplate, &ds.TooltipTemplate); err != nil {
		return nil, fmt.Errorf("tooltip_template: %w", err)
	}
	if err := unmarshalJSONB(r.MarkerRules, &ds.MarkerRules); err != nil {
		return nil, fmt.Errorf("marker_rules: %w", err)
	}
	return ds, nil
}

type datasetRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewDatasetRepository(db *DB) repository.DatasetRepository {
	return &datasetRepository{
		db:     db.DB,
		logger: db.logger,
	}
}

func (r *datasetRepository) GetByID(ctx context.Context, id int64) (*domain.Dataset, error) {
	query := `SELECT ` + datasetColumns + ` FROM datasets WHERE id = $1`

	var row datasetRow
	err := r.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrDatasetNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get dataset by ID", zap.Int64("id", id), zap.Error(err))
		return nil, errors.ErrDatabaseError.Wrap(err)
	}

	ds, err := row.toDomain()
	if err != nil {
		r.logger.Error("Failed to decode dataset", zap.Int64("id", id), zap.Error(err))
		return nil, errors.ErrDatabaseError.Wrap(err)
	}
	return ds, nil
}

func (r *datasetRepository) List(ctx context.Context, filter domain.DatasetFilter) ([]*domain.Dataset, int, error) {
	where, args := datasetWhere(filter)

	countQuery := `SELECT COUNT(*) FROM datasets` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		r.logger.Error("Failed to count datasets", zap.Error(err))
		return nil, 0, errors.ErrDatabaseError.Wrap(err)
	}

	order := datasetOrderColumns[strings.ToLower(filter.OrderBy)]
	if order == "" {
		order = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(filter.Order, "asc") {
		direction = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM datasets%s ORDER BY %s %s, id %s`,
		datasetColumns, where, order, direction, direction)
	if filter.PerPage > 0 {
		args = append(args, filter.PerPage, filter.OffsetValue())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var rows []datasetRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.Error("Failed to list datasets", zap.Error(err))
		return nil, 0, errors.ErrDatabaseError.Wrap(err)
	}

	datasets := make([]*domain.Dataset, 0, len(rows))
	for _, row := range rows {
		ds, err := row.toDomain()
		if err != nil {
			r.logger.Error("Failed to decode dataset", zap.Int64("id", row.ID), zap.Error(err))
			return nil, 0, errors.ErrDatabaseError.Wrap(err)
		}
		datasets = append(datasets, ds)
	}

	r.logger.Debug("Datasets listed",
		zap.Int("count", len(datasets)),
		zap.Int("total", total))
	return datasets, total, nil
}

// datasetWhere собирает WHERE и аргументы по фильтру списка
func datasetWhere(f domain.DatasetFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if len(f.Include) > 0 {
		add("id = ANY($%d)", pq.Array(f.Include))
	}
	if len(f.Exclude) > 0 {
		add("NOT (id = ANY($%d))", pq.Array(f.Exclude))
	}
	if len(f.Slugs) > 0 {
		add("slug = ANY($%d)", pq.Array(f.Slugs))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		add("title ILIKE $%d", "%"+s+"%")
	}
	if f.After != nil {
		add("created_at > $%d", *f.After)
	}
	if f.Before != nil {
		add("created_at < $%d", *f.Before)
	}
	if f.ModifiedAfter != nil {
		add("updated_at > $%d", *f.ModifiedAfter)
	}
	if f.ModifiedBefore != nil {
		add("updated_at < $%d", *f.ModifiedBefore)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *datasetRepository) ListScheduled(ctx context.Context) ([]*domain.Dataset, error) {
	query := `SELECT ` + datasetColumns + `
		FROM datasets
		WHERE source_kind = 'url' AND url_mode = 'import' AND title_template <> ''
		ORDER BY id`

	var rows []datasetRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		r.logger.Error("Failed to list scheduled datasets", zap.Error(err))
		return nil, errors.ErrDatabaseError.Wrap(err)
	}

	datasets := make([]*domain.Dataset, 0, len(rows))
	for _, row := range rows {
		ds, err := row.toDomain()
		if err != nil {
			// один поврежденный датасет не должен останавливать синхронизацию остальных
			r.logger.Warn("Skipping undecodable dataset", zap.Int64("id", row.ID), zap.Error(err))
			continue
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func (r *datasetRepository) Create(ctx context.Context, ds *domain.Dataset) error {
	params, err := datasetParams(ds)
	if err != nil {
		return errors.ErrDatabaseError.Wrap(err)
	}

	query := `
		INSERT INTO datasets (
			title, slug, source_kind, source_ref, url_mode, sync_mode,
			field_schema, title_template, tooltip_template, marker_rule_field,
			marker_rules, default_marker_color
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRowxContext(ctx, query, params...).Scan(&ds.ID, &ds.CreatedAt, &ds.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrSlugConflict
		}
		r.logger.Error("Failed to create dataset", zap.String("slug", ds.Slug), zap.Error(err))
		return errors.ErrDatabaseError.Wrap(err)
	}

	r.logger.Info("Dataset created", zap.Int64("id", ds.ID), zap.String("slug", ds.Slug))
	return nil
}

func (r *datasetRepository) Update(ctx context.Context, ds *domain.Dataset) error {
	params, err := datasetParams(ds)
	if err != nil {
		return errors.ErrDatabaseError.Wrap(err)
	}
	params = append(params, ds.ID)

	query := `
		UPDATE datasets SET
			title = $1, slug = $2, source_kind = $3, source_ref = $4, url_mode = $5,
			sync_mode = $6, field_schema = $7, title_template = $8, tooltip_template = $9,
			marker_rule_field = $10, marker_rules = $11, default_marker_color = $12,
			updated_at = now()
		WHERE id = $13
		RETURNING updated_at`

	err = r.db.QueryRowxContext(ctx, query, params...).Scan(&ds.UpdatedAt)
	if err == sql.ErrNoRows {
		return errors.ErrDatasetNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrSlugConflict
		}
		r.logger.Error("Failed to update dataset", zap.Int64("id", ds.ID), zap.Error(err))
		return errors.ErrDatabaseError.Wrap(err)
	}
	return nil
}

func (r *datasetRepository) UpdateFieldSchema(ctx context.Context, id int64, fields []domain.FieldDef) error {
	schema, err := marshalJSONB(fields)
	if err != nil {
		return errors.ErrDatabaseError.Wrap(fmt.Errorf("field_schema: %w", err))
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE datasets SET field_schema = $2, updated_at = now() WHERE id = $1`,
		id, schema)
	if err != nil {
		r.logger.Error("Failed to update dataset field schema", zap.Int64("id", id), zap.Error(err))
		return errors.ErrDatabaseError.Wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrDatasetNotFound
	}
	return nil
}

func (r *datasetRepository) Delete(ctx context.Context, id int64) error {
	// features удаляются каскадно
	res, err := r.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete dataset", zap.Int64("id", id), zap.Error(err))
		return errors.ErrDatabaseError.Wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrDatasetNotFound
	}

	r.logger.Info("Dataset deleted", zap.Int64("id", id))
	return nil
}

func datasetParams(ds *domain.Dataset) ([]interface{}, error) {
	schema, err := marshalJSONB(ds.FieldSchema)
	if err != nil {
		return nil, fmt.Errorf("field_schema: %w", err)
	}
	tooltip, err := marshalJSONB(ds.TooltipTemplate)
	if err != nil {
		return nil, fmt.Errorf("tooltip_template: %w", err)
	}
	rules, err := marshalJSONB(ds.MarkerRules)
	if err != nil {
		return nil, fmt.Errorf("marker_rules: %w", err)
	}

	return []interface{}{
		ds.Title, ds.Slug, string(ds.SourceKind), ds.SourceRef, string(ds.URLMode),
		string(ds.SyncMode), schema, ds.TitleTemplate, tooltip, ds.MarkerRuleField,
		rules, ds.DefaultMarkerColor,
	}, nil
}

// marshalJSONB сериализует срез в JSON; nil превращается в []
func marshalJSONB(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}

func unmarshalJSONB(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
