package errors

import (
	"fmt"
	"net/http"
	"sort"
)

type AppError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
	cause      error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap возвращает исходную ошибку, если она была передана через Wrap
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is сравнивает ошибки по коду, чтобы errors.Is работал с копиями sentinel-ошибок
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    make(map[string]interface{}),
	}
}

// WithDetails возвращает копию ошибки с деталями. Sentinel-ошибки не изменяются.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithMessage возвращает копию ошибки с другим сообщением
func (e *AppError) WithMessage(message string) *AppError {
	cp := *e
	cp.Message = message
	return &cp
}

// Wrap возвращает копию ошибки с причиной
func (e *AppError) Wrap(cause error) *AppError {
	cp := *e
	cp.cause = cause
	return &cp
}

// As извлекает *AppError из цепочки ошибок
func As(err error) (*AppError, bool) {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// NewInvalidGeometry - входные данные не удалось разобрать ни одним из поддерживаемых форматов
func NewInvalidGeometry(reason string) *AppError {
	return ErrInvalidGeometry.WithDetails(map[string]interface{}{
		"reason": reason,
	})
}

// NewFetchError - источник недоступен, вернул не-2xx или пустое тело
func NewFetchError(source string, cause error) *AppError {
	err := ErrFetchFailed.WithDetails(map[string]interface{}{
		"source": source,
		"reason": cause.Error(),
	})
	return err.Wrap(cause)
}

// NewGeocoderError - геокодер недоступен или вернул некорректный ответ
func NewGeocoderError(cause error) *AppError {
	err := ErrGeocoderFailed.WithDetails(map[string]interface{}{
		"reason": cause.Error(),
	})
	return err.Wrap(cause)
}

// NewUnsupportedFormat перечисляет допустимые форматы в сообщении и деталях
func NewUnsupportedFormat(requested string, valid []string) *AppError {
	sorted := append([]string(nil), valid...)
	sort.Strings(sorted)

	list := ""
	for i, f := range sorted {
		if i > 0 {
			list += ", "
		}
		list += f
	}

	return New(
		ErrUnsupportedFormat.Code,
		"Invalid output format. Use one of the following output formats: "+list,
		http.StatusNotFound,
	).WithDetails(map[string]interface{}{
		"requested":     requested,
		"valid_formats": sorted,
	})
}

// NewValidation - ошибка валидации с описанием поля
func NewValidation(field, reason string) *AppError {
	return ErrValidation.WithDetails(map[string]interface{}{
		"field":  field,
		"reason": reason,
	})
}
