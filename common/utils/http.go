package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/LexiconIndonesia/career-crawler-service/common/models"
)

// maxBodyBytes bounds request bodies read by DecodeJSON.
const maxBodyBytes = 1 << 20

func writeBody(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Int("status", statusCode).Msg("Failed to write response")
	}
}

// WriteJSON writes data wrapped in a BaseResponse.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	writeBody(w, statusCode, models.BaseResponse{Data: data})
}

// WriteError writes an ErrorResponse carrying the status text and message.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	writeBody(w, statusCode, models.ErrorResponse{
		Error: http.StatusText(statusCode),
		Msg:   message,
	})
}

// WritePagination writes one page of data with its pagination metadata.
// An empty result still reports a last page of 1.
func WritePagination(w http.ResponseWriter, statusCode int, data any, currentPage, perPage int, total int64) {
	lastPage := int64(1)
	if perPage > 0 && total > 0 {
		lastPage = (total + int64(perPage) - 1) / int64(perPage)
	}

	writeBody(w, statusCode, models.BasePaginationResponse{
		Data: data,
		Meta: models.MetaResponse{
			CurrentPage: int64(currentPage),
			LastPage:    lastPage,
			PerPage:     int64(perPage),
			Total:       total,
		},
	})
}

// Page returns the slice of items shown on page, counted from 1.
func Page[T any](items []T, page, perPage int) []T {
	start := (page - 1) * perPage
	if page < 1 || perPage < 1 || start >= len(items) {
		return []T{}
	}
	return items[start:min(start+perPage, len(items))]
}

// DecodeJSON decodes the request body into v and validates it. The
// returned error is safe to show to the client.
func DecodeJSON(r *http.Request, validate *validator.Validate, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request payload: %w", err)
	}
	if validate == nil {
		return nil
	}
	if err := validate.Struct(v); err != nil {
		return errors.New(ValidationMessage(err))
	}
	return nil
}

// ValidationMessage turns validator errors into "field: rule" pairs.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fe.Namespace()+": "+rule)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
