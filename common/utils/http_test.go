package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idsRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"ids":[1,2]}`},
		{name: "malformed", body: `{"ids":`, wantErr: "invalid request payload"},
		{name: "unknown field", body: `{"ids":[1],"x":1}`, wantErr: "invalid request payload"},
		{name: "missing", body: `{}`, wantErr: "idsRequest.IDs: required"},
		{name: "zero id", body: `{"ids":[0]}`, wantErr: "idsRequest.IDs[0]: gt=0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var v idsRequest
			err := DecodeJSON(r, validator.New(), &v)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, []int64{1, 2}, v.IDs)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWritePagination(t *testing.T) {
	tests := []struct {
		name     string
		perPage  int
		total    int64
		lastPage float64
	}{
		{name: "partial last page", perPage: 2, total: 5, lastPage: 3},
		{name: "exact", perPage: 5, total: 10, lastPage: 2},
		{name: "empty", perPage: 5, total: 0, lastPage: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WritePagination(w, http.StatusOK, []int{}, 1, tt.perPage, tt.total)

			var out map[string]map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
			assert.Equal(t, tt.lastPage, out["meta"]["last_page"])
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{1, 2}, Page(items, 1, 2))
	assert.Equal(t, []int{5}, Page(items, 3, 2))
	assert.Empty(t, Page(items, 4, 2))
	assert.Empty(t, Page(items, 0, 2))
}
