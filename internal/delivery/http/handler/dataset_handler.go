package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/pkg/errors"
	"github.com/openkaarten-service/internal/pkg/utils"
	"github.com/openkaarten-service/internal/pkg/validator"
	"github.com/openkaarten-service/internal/usecase/dto"
)

// DatasetPublisher - операции чтения датасетов
type DatasetPublisher interface {
	ListDatasets(ctx context.Context, req dto.DatasetListRequest) (*dto.DatasetCollectionResponse, error)
	GetDataset(ctx context.Context, id int64, format, projection string) (*dto.DatasetPayload, error)
	Formats() []dto.FormatInfo
}

// DatasetHandler - публичное API чтения датасетов
type DatasetHandler struct {
	publishUC DatasetPublisher
	logger    *zap.Logger
}

// NewDatasetHandler - создание нового DatasetHandler
func NewDatasetHandler(publishUC DatasetPublisher, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{
		publishUC: publishUC,
		logger:    logger,
	}
}

// ListDatasets godoc
// @Summary Список датасетов
// @Description Страница датасетов, каждый как GeoJSON FeatureCollection. Датасет, который не удалось собрать, отдается пустой коллекцией с полем error.
// @Tags Datasets
// @Produce json
// @Param page query int false "Номер страницы" default(1)
// @Param per_page query int false "Датасетов на странице (до 100)" default(10)
// @Param offset query int false "Смещение, заменяет page"
// @Param orderby query string false "Сортировка" Enums(id, title, slug, date, modified)
// @Param order query string false "Направление" Enums(asc, desc)
// @Param include query []int false "Только эти ID"
// @Param exclude query []int false "Исключить ID"
// @Param slug query []string false "Фильтр по slug"
// @Param search query string false "Поиск по названию"
// @Param after query string false "Созданы после (RFC3339)"
// @Param before query string false "Созданы до (RFC3339)"
// @Param modified_after query string false "Изменены после (RFC3339)"
// @Param modified_before query string false "Изменены до (RFC3339)"
// @Param projection query string false "WGS84 или RD" default(WGS84)
// @Success 200 {object} dto.DatasetCollectionResponse
// @Failure 400 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Router /api/v1/datasets [get]
func (h *DatasetHandler) ListDatasets(c *fiber.Ctx) error {
	var req dto.DatasetListRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, errors.ErrInvalidRequest.Wrap(err))
	}
	if err := validator.ValidateRequest(req); err != nil {
		return utils.SendError(c, err)
	}

	start := time.Now()
	resp, err := h.publishUC.ListDatasets(c.UserContext(), req)
	if err != nil {
		return utils.SendError(c, err)
	}

	h.logger.Debug("Datasets listed",
		zap.Int("count", len(resp.Datasets)),
		zap.Int("total", resp.Pagination.Total),
		zap.Duration("took", time.Since(start)))

	c.Set("X-WP-Total", fmt.Sprint(resp.Pagination.Total))
	c.Set("X-WP-TotalPages", fmt.Sprint(resp.Pagination.Pages.Total))
	return c.JSON(resp)
}

// GetDataset godoc
// @Summary Датасет в формате GeoJSON
// @Description FeatureCollection датасета с видимыми полями, заголовком, маркером, подсказкой и изображением каждой feature
// @Tags Datasets
// @Produce json
// @Param id path int true "ID датасета"
// @Param projection query string false "WGS84 или RD" default(WGS84)
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Router /api/v1/datasets/id/{id} [get]
func (h *DatasetHandler) GetDataset(c *fiber.Ctx) error {
	return h.sendDataset(c, "")
}

// GetDatasetFormat godoc
// @Summary Датасет в выбранном формате
// @Description geojson и json отдаются как JSON, остальные форматы как вложение {id}.{format}
// @Tags Datasets
// @Produce json,application/vnd.google-earth.kml+xml,application/gml+xml,application/xml,application/gpx+xml,text/plain,application/octet-stream
// @Param id path int true "ID датасета"
// @Param format path string true "Формат" Enums(geojson, json, kml, gml, xml, gpx, wkt, wkb)
// @Param projection query string false "WGS84 или RD" default(WGS84)
// @Success 200 {file} file
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Router /api/v1/datasets/id/{id}/{format} [get]
func (h *DatasetHandler) GetDatasetFormat(c *fiber.Ctx) error {
	return h.sendDataset(c, c.Params("format"))
}

func (h *DatasetHandler) sendDataset(c *fiber.Ctx, format string) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return utils.SendError(c, errors.ErrDatasetNotFound)
	}

	payload, err := h.publishUC.GetDataset(c.UserContext(), int64(id), format, c.Query("projection"))
	if err != nil {
		return utils.SendError(c, err)
	}

	if payload.RawJSON {
		return utils.SendRawJSON(c, payload.Body)
	}
	if payload.Filename != "" {
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, payload.Filename))
	}
	c.Set(fiber.HeaderContentType, payload.ContentType)
	return c.Send(payload.Body)
}

// GetFormats godoc
// @Summary Доступные выходные форматы
// @Tags Datasets
// @Produce json
// @Success 200 {object} utils.SuccessResponse{data=[]dto.FormatInfo}
// @Router /api/v1/formats [get]
func (h *DatasetHandler) GetFormats(c *fiber.Ctx) error {
	formats := h.publishUC.Formats()
	return utils.SendSuccess(c, formats, &utils.Meta{Total: len(formats)})
}
