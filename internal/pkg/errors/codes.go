package errors

import "net/http"

var (
	ErrDatasetNotFound = New(
		"DATASET_NOT_FOUND",
		"Dataset not found",
		http.StatusNotFound,
	)

	ErrFeatureNotFound = New(
		"FEATURE_NOT_FOUND",
		"Feature not found",
		http.StatusNotFound,
	)

	ErrInvalidGeometry = New(
		"INVALID_GEOMETRY",
		"Geometry could not be parsed",
		http.StatusUnprocessableEntity,
	)

	ErrFetchFailed = New(
		"FETCH_FAILED",
		"Source could not be fetched",
		http.StatusBadGateway,
	)

	ErrUnsupportedFormat = New(
		"UNSUPPORTED_FORMAT",
		"Invalid output format",
		http.StatusNotFound,
	)

	ErrInvalidProjection = New(
		"INVALID_PROJECTION",
		"Projection must be WGS84 or RD",
		http.StatusBadRequest,
	)

	ErrGeometryNotEditable = New(
		"GEOMETRY_NOT_EDITABLE",
		"Only Point geometries can be edited",
		http.StatusConflict,
	)

	ErrAddressNotFound = New(
		"ADDRESS_NOT_FOUND",
		"Address could not be located",
		http.StatusUnprocessableEntity,
	)

	ErrGeocoderFailed = New(
		"GEOCODER_FAILED",
		"Geocoding service is unavailable",
		http.StatusBadGateway,
	)

	ErrSlugConflict = New(
		"SLUG_CONFLICT",
		"A dataset with this slug already exists",
		http.StatusConflict,
	)

	ErrValidation = New(
		"VALIDATION_ERROR",
		"Validation failed",
		http.StatusBadRequest,
	)

	ErrDatabaseError = New(
		"DATABASE_ERROR",
		"Database operation failed",
		http.StatusInternalServerError,
	)

	ErrCacheError = New(
		"CACHE_ERROR",
		"Cache operation failed",
		http.StatusInternalServerError,
	)

	ErrInvalidRequest = New(
		"INVALID_REQUEST",
		"Invalid request parameters",
		http.StatusBadRequest,
	)

	ErrInternalServer = New(
		"INTERNAL_SERVER_ERROR",
		"Internal server error",
		http.StatusInternalServerError,
	)
)
