// Package docs OpenKaarten Service API.
//
// Импорт геоданных из внешних источников (GeoJSON, KML, GML, GPX, WKT, WKB)
// и публикация датасетов с маркерами и подсказками.
//
// Основные возможности:
// - Выгрузка датасета в одном из форматов в проекции WGS84 или RD
// - Список датасетов с пагинацией, фильтрами и сортировкой
// - Управление датасетами, схемой полей и геометрией features
//
//	Schemes: http, https
//	BasePath: /
//	Version: 1.0.0
//
//	Consumes:
//	- application/json
//
//	Produces:
//	- application/json
//	- application/vnd.google-earth.kml+xml
//	- application/gml+xml
//	- application/gpx+xml
//	- application/octet-stream
//
// swagger:meta
package docs
