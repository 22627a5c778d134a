package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/municipal/backoffice/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type citizenRequest struct {
	NationalID string `json:"national_id" binding:"required,national_id"`
	ISBN       string `json:"isbn" binding:"omitempty,isbn13"`
	Plate      string `json:"plate" binding:"omitempty,plate"`
	Name       string `json:"name" binding:"required,min=2"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	RegisterValidators(v)
	return v
}

func TestCustomValidators(t *testing.T) {
	v := newValidator()

	tests := []struct {
		name    string
		req     citizenRequest
		wantTag string
	}{
		{"valid", citizenRequest{NationalID: "12345678901", ISBN: "9780306406157", Plate: "34 ABC 123", Name: "Ayse"}, ""},
		{"short national id", citizenRequest{NationalID: "1234", Name: "Ayse"}, "national_id"},
		{"letters in national id", citizenRequest{NationalID: "1234567890a", Name: "Ayse"}, "national_id"},
		{"isbn10 rejected", citizenRequest{NationalID: "12345678901", ISBN: "0306406152", Name: "Ayse"}, "isbn13"},
		{"compact plate", citizenRequest{NationalID: "12345678901", Plate: "06A1234", Name: "Ayse"}, ""},
		{"province out of range", citizenRequest{NationalID: "12345678901", Plate: "99 AB 123", Name: "Ayse"}, "plate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.req)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			var verrs validator.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Equal(t, tt.wantTag, verrs[0].Tag())
		})
	}
}

func TestIsValidPlate(t *testing.T) {
	assert.True(t, IsValidPlate("34 abc 123"))
	assert.True(t, IsValidPlate("81 A 12"))
	assert.False(t, IsValidPlate("00 A 12"))
	assert.False(t, IsValidPlate("34"))
}

func TestFormatValidationErrors(t *testing.T) {
	err := newValidator().Struct(citizenRequest{NationalID: "1", Name: "A"})
	require.Error(t, err)

	resp := FormatValidationErrors(err, "req-1")
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)
	require.Len(t, resp.Error.Details, 2)

	byField := map[string]dto.ValidationDetail{}
	for _, d := range resp.Error.Details {
		byField[d.Field] = d
	}
	assert.Equal(t, "national_id", byField["national_id"].Tag)
	assert.Equal(t, "Must be an 11-digit national ID", byField["national_id"].Message)
	assert.Equal(t, "Must be at least 2 characters", byField["name"].Message)
}

func TestHandleValidationError_MalformedJSON(t *testing.T) {
	SetupValidator()

	router := gin.New()
	router.POST("/citizens", func(c *gin.Context) {
		var req citizenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusCreated)
	})

	w := serve(router, httptest.NewRequest(http.MethodPost, "/citizens", strings.NewReader(`{"national_id":`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "Request body is empty or truncated", resp.Error.Message)
	assert.Empty(t, resp.Error.Details)

	w = serve(router, httptest.NewRequest(http.MethodPost, "/citizens", strings.NewReader(`{"national_id":12345678901,"name":"Ali"}`)))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "national_id", resp.Error.Details[0].Field)
	assert.Equal(t, "type", resp.Error.Details[0].Tag)

	w = serve(router, httptest.NewRequest(http.MethodPost, "/citizens", strings.NewReader(`{"national_id":"12","name":"Ali"}`)))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "national_id", resp.Error.Details[0].Field)
}

func TestFieldName(t *testing.T) {
	type sample struct {
		A string `json:"a,omitempty"`
		B string `form:"b"`
		C string `json:"-"`
		D string
	}
	typ := reflect.TypeOf(sample{})
	want := []string{"a", "b", "", ""}
	for i, w := range want {
		assert.Equal(t, w, fieldName(typ.Field(i)))
	}
}

func TestFormatValidationErrors_Syntax(t *testing.T) {
	var v map[string]any
	err := json.Unmarshal([]byte(`{"a" 1}`), &v)
	resp := FormatValidationErrors(err, "")
	assert.Contains(t, resp.Error.Message, "Malformed JSON at offset")
}
