package dto

import (
	"encoding/json"
	"time"

	"github.com/openkaarten-service/internal/domain"
)

// DatasetListRequest - параметры GET /datasets
type DatasetListRequest struct {
	Page           int      `query:"page" validate:"omitempty,min=1"`
	PerPage        int      `query:"per_page" validate:"omitempty,min=1,max=100"`
	Offset         *int     `query:"offset" validate:"omitempty,min=0"`
	OrderBy        string   `query:"orderby" validate:"omitempty,oneof=id title slug date modified"`
	Order          string   `query:"order" validate:"omitempty,oneof=asc desc ASC DESC"`
	Include        []int64  `query:"include"`
	Exclude        []int64  `query:"exclude"`
	Slug           []string `query:"slug"`
	Search         string   `query:"search" validate:"max=200"`
	After          string   `query:"after" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Before         string   `query:"before" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	ModifiedAfter  string   `query:"modified_after" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	ModifiedBefore string   `query:"modified_before" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Projection     string   `query:"projection" validate:"projection"`
}

const (
	DefaultPerPage = 10
	DefaultPage    = 1
)

// Filter переводит параметры запроса в фильтр хранилища
func (r DatasetListRequest) Filter() domain.DatasetFilter {
	f := domain.DatasetFilter{
		Page:           r.Page,
		PerPage:        r.PerPage,
		Offset:         r.Offset,
		OrderBy:        r.OrderBy,
		Order:          r.Order,
		Include:        r.Include,
		Exclude:        r.Exclude,
		Slugs:          r.Slug,
		Search:         r.Search,
		After:          parseTime(r.After),
		Before:         parseTime(r.Before),
		ModifiedAfter:  parseTime(r.ModifiedAfter),
		ModifiedBefore: parseTime(r.ModifiedBefore),
	}
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	return f
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// DatasetCollectionResponse - ответ GET /datasets
type DatasetCollectionResponse struct {
	Type       string            `json:"type"`
	Datasets   []json.RawMessage `json:"datasets"`
	Pagination Pagination        `json:"pagination"`
	Links      map[string]string `json:"_links"`
}

type Pagination struct {
	Total int       `json:"total"`
	Limit int       `json:"limit"`
	Pages PageCount `json:"pages"`
}

type PageCount struct {
	Total   int `json:"total"`
	Current int `json:"current"`
}

// DatasetPayload - закодированный датасет в запрошенном формате
type DatasetPayload struct {
	Body        []byte
	ContentType string
	// Filename задан для форматов, отдаваемых как вложение
	Filename string
	// RawJSON - тело уже является JSON и пишется без повторного кодирования
	RawJSON bool
}

// FormatInfo - описание выходного формата для GET /formats
type FormatInfo struct {
	Name       string `json:"name"`
	MimeType   string `json:"mime_type"`
	Attachment bool   `json:"attachment"`
}
