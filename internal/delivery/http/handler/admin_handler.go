package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/pkg/errors"
	"github.com/openkaarten-service/internal/pkg/utils"
	"github.com/openkaarten-service/internal/usecase/dto"
)

// DatasetManager - операции управления датасетами и features
type DatasetManager interface {
	Get(ctx context.Context, id int64) (*domain.Dataset, error)
	Create(ctx context.Context, req dto.DatasetRequest) (*domain.Dataset, error)
	Update(ctx context.Context, id int64, req dto.DatasetRequest) (*domain.Dataset, error)
	Delete(ctx context.Context, id int64) error
	Sync(ctx context.Context, id int64) (*domain.ImportRun, error)
	SourceFields(ctx context.Context, id int64) (*dto.SourceFieldsResponse, error)
	ResyncSchema(ctx context.Context, id int64) (*dto.SchemaResyncResponse, error)
	UpdateFieldMapping(ctx context.Context, id int64, req dto.UpdateFieldsRequest) (*domain.Dataset, error)
	UpdatePointGeometry(ctx context.Context, featureID string, req dto.GeometryUpdateRequest) (*domain.Feature, error)
	UpdatePointAddress(ctx context.Context, featureID string, addr domain.Address) (*domain.Feature, error)
	SetThumbnail(ctx context.Context, featureID string, thumbnail *domain.Thumbnail) (*domain.Feature, error)
}

// AdminHandler - API управления датасетами
type AdminHandler struct {
	datasetUC DatasetManager
	logger    *zap.Logger
}

// NewAdminHandler - создание нового AdminHandler
func NewAdminHandler(datasetUC DatasetManager, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		datasetUC: datasetUC,
		logger:    logger,
	}
}

func datasetID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, errors.ErrDatasetNotFound
	}
	return int64(id), nil
}

// GetDataset godoc
// @Summary Конфигурация датасета
// @Tags Admin
// @Produce json
// @Param id path int true "ID датасета"
// @Success 200 {object} utils.SuccessResponse{data=domain.Dataset}
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/admin/datasets/{id} [get]
func (h *AdminHandler) GetDataset(c *fiber.Ctx) error {
	id, err := datasetID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	ds, err := h.datasetUC.Get(c.UserContext(), id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, ds, nil)
}

// CreateDataset godoc
// @Summary Создание датасета
// @Description Сохраняет датасет и публикует событие DatasetSaved; импорт выполняет воркер
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body dto.DatasetRequest true "Конфигурация датасета"
// @Success 201 {object} utils.SuccessResponse{data=domain.Dataset}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Router /api/v1/admin/datasets [post]
func (h *AdminHandler) CreateDataset(c *fiber.Ctx) error {
	var req dto.DatasetRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, errors.ErrInvalidRequest.Wrap(err))
	}

	ds, err := h.datasetUC.Create(c.UserContext(), req)
	if err != nil {
		return utils.SendError(c, err)
	}

	h.logger.Info("Dataset created", zap.Int64("dataset_id", ds.ID), zap.String("slug", ds.Slug))
	c.Status(fiber.StatusCreated)
	return utils.SendSuccess(c, ds, nil)
}

// UpdateDataset godoc
// @Summary Изменение датасета
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path int true "ID датасета"
// @Param request body dto.DatasetRequest true "Конфигурация датасета"
// @Success 200 {object} utils.SuccessResponse{data=domain.Dataset}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/admin/datasets/{id} [put]
func (h *AdminHandler) UpdateDataset(c *fiber.Ctx) error {
	id, err := datasetID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	var req dto.DatasetRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, errors.ErrInvalidRequest.Wrap(err))
	}

	ds, err := h.datasetUC.Update(c.UserContext(), id, req)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, ds, nil)
}

// DeleteDataset godoc
// @Summary Удаление датасета вместе с features
// @Tags Admin
// @Param id path int true "ID датасета"
// @Success 204
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/admin/datasets/{id} [delete]
func (h *AdminHandler) DeleteDataset(c *fiber.Ctx) error {
	id, err := datasetID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	if err := h.datasetUC.Delete(c.UserContext(), id); err != nil {
		return utils.SendError(c, err)
	}

	h.logger.Info("Dataset deleted", zap.Int64("dataset_id", id))
	return c.SendStatus(fiber.StatusNoContent)
}

// SyncDataset godoc
// @Summary Ручная синхронизация датасета
// @Description Выполняет импорт синхронно и возвращает результат прогона
// @Tags Admin
// @Produce json
// @Param id path int true "ID датасета"
// @Success 200 {object} utils.SuccessResponse{data=domain.ImportRun}
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Failure 502 {object} utils.ErrorResponse
// @Router /api/v1/admin/datasets/{id}/sync [post]
func (h *AdminHandler) SyncDataset(c *fiber.Ctx) error {
	id, err := datasetID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	run, err := h.datasetUC.Sync(c.UserContext(), id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, run, &utils.Meta{Total: run.FeatureCount})
}

// GetSourceFields godoc
// @Summary Поля источника
// @Description Загружает источник и возвращает ключи первой записи с примерами значений
// @Tags Admin
// @Produce json
// @Param id path int true "ID датасета"
// @Success 200 {object} utils.SuccessResponse{data=dto.SourceFieldsResponse}
// @Failure 404 {object} utils.ErrorResponse
// @Failure 502 {object} utils.ErrorResponse
// @Router /api/v1/admin/datasets/{id}/source-fields [get]
func (h *AdminHandler) GetSourceFields(c *fiber.Ctx) error {
	id, err := datasetID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	resp, err := h.datasetUC.SourceFields(c.UserContext(), id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, resp, &utils.Meta{Total: len(resp.Fields)})
}

// ResyncSchema godoc
// @Summary Пересборка схемы полей по источнику
// @Tags Admin
// @Produce json
// @Param id path int true "ID датасета"
// @Success 200 {object} utils.SuccessResponse{data=dto.SchemaResyncResponse}
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/admin/datasets/{id}/schema/resync [post]
func (h *AdminHandler) ResyncSchema(c *fiber.Ctx) error {
	id, err := datasetID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	resp, err := h.datasetUC.ResyncSchema(c.UserContext(), id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, resp, nil)
}

// UpdateFields godoc
// @Summary Изменение схемы полей и шаблона заголовка
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path int true "ID датасета"
// @Param request body dto.UpdateFieldsRequest true "Схема полей"
// @Success 200 {object} utils.SuccessResponse{data=domain.Dataset}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/admin/datasets/{id}/fields [put]
func (h *AdminHandler) UpdateFields(c *fiber.Ctx) error {
	id, err := datasetID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	var req dto.UpdateFieldsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, errors.ErrInvalidRequest.Wrap(err))
	}

	ds, err := h.datasetUC.UpdateFieldMapping(c.UserContext(), id, req)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, ds, nil)
}

// UpdateFeatureGeometry godoc
// @Summary Перемещение Point-feature
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "ID feature (uuid)"
// @Param request body dto.GeometryUpdateRequest true "Новая позиция"
// @Success 200 {object} utils.SuccessResponse{data=domain.Feature}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Router /api/v1/admin/features/{id}/geometry [patch]
func (h *AdminHandler) UpdateFeatureGeometry(c *fiber.Ctx) error {
	var req dto.GeometryUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, errors.ErrInvalidRequest.Wrap(err))
	}

	f, err := h.datasetUC.UpdatePointGeometry(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, f, nil)
}

// UpdateFeatureAddress godoc
// @Summary Адрес Point-feature
// @Description Адрес сохраняется в feature, позиция определяется геокодером
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "ID feature (uuid)"
// @Param request body domain.Address true "Адрес"
// @Success 200 {object} utils.SuccessResponse{data=domain.Feature}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Failure 502 {object} utils.ErrorResponse
// @Router /api/v1/admin/features/{id}/address [put]
func (h *AdminHandler) UpdateFeatureAddress(c *fiber.Ctx) error {
	var addr domain.Address
	if err := c.BodyParser(&addr); err != nil {
		return utils.SendError(c, errors.ErrInvalidRequest.Wrap(err))
	}

	f, err := h.datasetUC.UpdatePointAddress(c.UserContext(), c.Params("id"), addr)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, f, nil)
}

// SetFeatureThumbnail godoc
// @Summary Изображение feature
// @Description Пустое тело или null снимает изображение
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "ID feature (uuid)"
// @Param request body domain.Thumbnail false "Изображение"
// @Success 200 {object} utils.SuccessResponse{data=domain.Feature}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /api/v1/admin/features/{id}/thumbnail [put]
func (h *AdminHandler) SetFeatureThumbnail(c *fiber.Ctx) error {
	var thumb *domain.Thumbnail
	if body := c.Body(); len(body) > 0 && string(body) != "null" {
		thumb = &domain.Thumbnail{}
		if err := c.BodyParser(thumb); err != nil {
			return utils.SendError(c, errors.ErrInvalidRequest.Wrap(err))
		}
	}

	f, err := h.datasetUC.SetThumbnail(c.UserContext(), c.Params("id"), thumb)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, f, nil)
}
