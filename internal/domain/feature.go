package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// FieldPrefix - префикс ключей свойств в хранимых метаданных feature
	FieldPrefix = "field_"
	// MetaDatasetID - обратная ссылка на датасет в метаданных feature
	MetaDatasetID = "location_datalayer_id"

	// служебные ключи вне пространства field_, чтобы свойства источника
	// с такими же именами не пересекались с ними
	MetaLatitude  = "location_geo_latitude"
	MetaLongitude = "location_geo_longitude"
	MetaAddress   = "location_geo_address"
	MetaZipcode   = "location_geo_zipcode"
	MetaCity      = "location_geo_city"
	MetaCountry   = "location_geo_country"
)

// Address - почтовый адрес Point-feature
type Address struct {
	Street  string `json:"street" validate:"required,max=255"`
	Zipcode string `json:"zipcode,omitempty" validate:"max=32"`
	City    string `json:"city,omitempty" validate:"max=255"`
	Country string `json:"country,omitempty" validate:"max=255"`
}

// Query - строка поиска для геокодера
func (a Address) Query() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.Zipcode, a.City, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// String форматирует адрес для вывода: улица, индекс и город, страна
func (a Address) String() string {
	lines := make([]string, 0, 3)
	if a.Street != "" {
		lines = append(lines, a.Street)
	}
	if line := strings.TrimSpace(a.Zipcode + " " + a.City); line != "" {
		lines = append(lines, line)
	}
	if a.Country != "" {
		lines = append(lines, a.Country)
	}
	return strings.Join(lines, "\n")
}

// Thumbnail - прикрепленное изображение feature
type Thumbnail struct {
	URL    string `json:"url" validate:"required,url"`
	Width  int    `json:"width,omitempty" validate:"gte=0"`
	Height int    `json:"height,omitempty" validate:"gte=0"`
	Alt    string `json:"alt,omitempty"`
}

// Feature - материализованная запись датасета: геометрия и свойства
type Feature struct {
	ID        uuid.UUID `json:"id"`
	DatasetID int64     `json:"dataset_id"`
	Title     string    `json:"title"`
	// Geometry - сериализованный GeoJSON Feature в WGS84
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
	Thumbnail  *Thumbnail             `json:"thumbnail,omitempty"`
	Address    *Address               `json:"address,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`

	// Lat / Lon заполняются только для Point-геометрий
	Lat *float64 `json:"-"`
	Lon *float64 `json:"-"`
}

// Meta возвращает свойства в формате хранения: ключи с префиксом field_,
// обратную ссылку на датасет, координаты и адрес
func (f *Feature) Meta() map[string]interface{} {
	meta := make(map[string]interface{}, len(f.Properties)+1)
	for k, v := range f.Properties {
		meta[FieldPrefix+k] = v
	}
	meta[MetaDatasetID] = f.DatasetID
	if f.Lat != nil && f.Lon != nil {
		meta[MetaLatitude] = *f.Lat
		meta[MetaLongitude] = *f.Lon
	}
	if f.Address != nil {
		meta[MetaAddress] = f.Address.Street
		meta[MetaZipcode] = f.Address.Zipcode
		meta[MetaCity] = f.Address.City
		meta[MetaCountry] = f.Address.Country
	}
	return meta
}

// PropertiesFromMeta восстанавливает свойства из хранимых метаданных
func PropertiesFromMeta(meta map[string]interface{}) map[string]interface{} {
	props := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		if strings.HasPrefix(k, FieldPrefix) {
			props[strings.TrimPrefix(k, FieldPrefix)] = v
		}
	}
	return props
}

// AddressFromMeta возвращает сохраненный адрес или nil
func AddressFromMeta(meta map[string]interface{}) *Address {
	street, _ := meta[MetaAddress].(string)
	if street == "" {
		return nil
	}
	a := &Address{Street: street}
	a.Zipcode, _ = meta[MetaZipcode].(string)
	a.City, _ = meta[MetaCity].(string)
	a.Country, _ = meta[MetaCountry].(string)
	return a
}

// GeocodeResult - найденная позиция адреса
type GeocodeResult struct {
	Lat         float64
	Lon         float64
	DisplayName string
}
