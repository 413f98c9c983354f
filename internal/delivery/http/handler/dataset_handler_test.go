package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/delivery/http/handler"
	"github.com/openkaarten-service/internal/pkg/errors"
	"github.com/openkaarten-service/internal/usecase/dto"
)

type MockDatasetPublisher struct {
	mock.Mock
}

func (m *MockDatasetPublisher) ListDatasets(ctx context.Context, req dto.DatasetListRequest) (*dto.DatasetCollectionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.DatasetCollectionResponse), args.Error(1)
}

func (m *MockDatasetPublisher) GetDataset(ctx context.Context, id int64, format, projection string) (*dto.DatasetPayload, error) {
	args := m.Called(ctx, id, format, projection)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.DatasetPayload), args.Error(1)
}

func (m *MockDatasetPublisher) Formats() []dto.FormatInfo {
	args := m.Called()
	return args.Get(0).([]dto.FormatInfo)
}

func newReadApp(uc *MockDatasetPublisher) *fiber.App {
	h := handler.NewDatasetHandler(uc, zap.NewNop())
	app := fiber.New()
	app.Get("/api/v1/formats", h.GetFormats)
	app.Get("/api/v1/datasets", h.ListDatasets)
	app.Get("/api/v1/datasets/id/:id", h.GetDataset)
	app.Get("/api/v1/datasets/id/:id/:format", h.GetDatasetFormat)
	return app
}

func TestDatasetHandler_ListDatasets(t *testing.T) {
	t.Run("query is parsed", func(t *testing.T) {
		uc := &MockDatasetPublisher{}
		uc.On("ListDatasets", mock.Anything, mock.MatchedBy(func(req dto.DatasetListRequest) bool {
			return req.Page == 2 && req.PerPage == 5 && req.Projection == "rd" &&
				len(req.Include) == 2 && req.Include[0] == 3 && req.Include[1] == 4
		})).Return(&dto.DatasetCollectionResponse{
			Type:     "DatasetCollection",
			Datasets: []json.RawMessage{json.RawMessage(`{"type":"FeatureCollection","features":[],"id":3}`)},
			Pagination: dto.Pagination{
				Total: 6,
				Limit: 5,
				Pages: dto.PageCount{Total: 2, Current: 2},
			},
			Links: map[string]string{"datasets": "/api/v1/datasets/id/{id}"},
		}, nil)

		req := httptest.NewRequest("GET", "/api/v1/datasets?page=2&per_page=5&projection=rd&include=3&include=4", nil)
		resp, err := newReadApp(uc).Test(req)
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "6", resp.Header.Get("X-WP-Total"))
		assert.Equal(t, "2", resp.Header.Get("X-WP-TotalPages"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "DatasetCollection", body["type"])
		assert.Len(t, body["datasets"], 1)
		assert.Contains(t, body, "_links")
	})

	t.Run("invalid projection is rejected", func(t *testing.T) {
		uc := &MockDatasetPublisher{}

		req := httptest.NewRequest("GET", "/api/v1/datasets?projection=mercator", nil)
		resp, err := newReadApp(uc).Test(req)
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		uc.AssertNotCalled(t, "ListDatasets", mock.Anything, mock.Anything)
	})

	t.Run("per_page is capped", func(t *testing.T) {
		uc := &MockDatasetPublisher{}

		req := httptest.NewRequest("GET", "/api/v1/datasets?per_page=500", nil)
		resp, err := newReadApp(uc).Test(req)
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestDatasetHandler_GetDataset(t *testing.T) {
	t.Run("geojson is written raw", func(t *testing.T) {
		uc := &MockDatasetPublisher{}
		uc.On("GetDataset", mock.Anything, int64(7), "", "").Return(&dto.DatasetPayload{
			Body:        []byte(`{"type":"FeatureCollection","features":[]}`),
			ContentType: "application/json",
			RawJSON:     true,
		}, nil)

		resp, err := newReadApp(uc).Test(httptest.NewRequest("GET", "/api/v1/datasets/id/7", nil))
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
		assert.Empty(t, resp.Header.Get("Content-Disposition"))
		body, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(body))
	})

	t.Run("kml is an attachment", func(t *testing.T) {
		uc := &MockDatasetPublisher{}
		uc.On("GetDataset", mock.Anything, int64(7), "kml", "RD").Return(&dto.DatasetPayload{
			Body:        []byte(`<kml/>`),
			ContentType: "application/vnd.google-earth.kml+xml",
			Filename:    "7.kml",
		}, nil)

		resp, err := newReadApp(uc).Test(httptest.NewRequest("GET", "/api/v1/datasets/id/7/kml?projection=RD", nil))
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/vnd.google-earth.kml+xml", resp.Header.Get("Content-Type"))
		assert.Equal(t, `attachment; filename="7.kml"`, resp.Header.Get("Content-Disposition"))
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "<kml/>", string(body))
	})

	t.Run("unsupported format is 404", func(t *testing.T) {
		uc := &MockDatasetPublisher{}
		uc.On("GetDataset", mock.Anything, int64(7), "shp", "").
			Return(nil, errors.NewUnsupportedFormat("shp", []string{"geojson", "kml"}))

		resp, err := newReadApp(uc).Test(httptest.NewRequest("GET", "/api/v1/datasets/id/7/shp", nil))
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		var body struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "UNSUPPORTED_FORMAT", body.Error.Code)
		assert.Contains(t, body.Error.Message, "geojson, kml")
	})

	t.Run("malformed geometry is 422", func(t *testing.T) {
		uc := &MockDatasetPublisher{}
		uc.On("GetDataset", mock.Anything, int64(8), "", "").Return(nil, errors.NewInvalidGeometry("bad"))

		resp, err := newReadApp(uc).Test(httptest.NewRequest("GET", "/api/v1/datasets/id/8", nil))
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("non numeric id is 404", func(t *testing.T) {
		uc := &MockDatasetPublisher{}

		resp, err := newReadApp(uc).Test(httptest.NewRequest("GET", "/api/v1/datasets/id/abc", nil))
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		uc.AssertNotCalled(t, "GetDataset", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDatasetHandler_GetFormats(t *testing.T) {
	uc := &MockDatasetPublisher{}
	uc.On("Formats").Return([]dto.FormatInfo{
		{Name: "geojson", MimeType: "application/json"},
		{Name: "kml", MimeType: "application/vnd.google-earth.kml+xml", Attachment: true},
	})

	resp, err := newReadApp(uc).Test(httptest.NewRequest("GET", "/api/v1/formats", nil))
	require.NoError(t, err)

	var body struct {
		Data []dto.FormatInfo `json:"data"`
		Meta struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Data, 2)
	assert.Equal(t, 2, body.Meta.Total)
}
