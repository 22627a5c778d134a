package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/municipal/backoffice/internal/interfaces/http/dto"
)

var (
	nationalIDPattern = regexp.MustCompile(`^[0-9]{11}$`)
	isbn13Pattern     = regexp.MustCompile(`^[0-9]{13}$`)
	// province code 01-81, 1-3 letters, 2-4 digits: "34 ABC 123", "06A1234"
	platePattern = regexp.MustCompile(`^(0[1-9]|[1-7][0-9]|8[01]) ?[A-Z]{1,3} ?[0-9]{2,4}$`)

	setupOnce sync.Once
)

// SetupValidator configures gin's validator once: JSON field names in errors
// and the national_id, isbn13 and plate tags.
func SetupValidator() {
	setupOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			RegisterValidators(v)
		}
	})
}

func RegisterValidators(v *validator.Validate) {
	v.RegisterTagNameFunc(fieldName)
	_ = v.RegisterValidation("national_id", matchPattern(nationalIDPattern))
	_ = v.RegisterValidation("isbn13", matchPattern(isbn13Pattern))
	_ = v.RegisterValidation("plate", func(fl validator.FieldLevel) bool {
		return IsValidPlate(fl.Field().String())
	})
}

// fieldName reports the json name of a field, then its form name
func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		switch name {
		case "-":
			return ""
		case "":
			continue
		default:
			return name
		}
	}
	return ""
}

func matchPattern(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// IsValidPlate reports whether s is a Turkish licence plate
func IsValidPlate(s string) bool {
	return platePattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// FormatValidationErrors turns a binding error into the validation envelope.
// Field errors become details; decoding errors get a message naming the
// offending field where the decoder reports one.
func FormatValidationErrors(err error, requestID string) dto.Response {
	var (
		fieldErrs validator.ValidationErrors
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
	)
	switch {
	case errors.As(err, &fieldErrs):
		details := make([]dto.ValidationDetail, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, dto.ValidationDetail{Field: fe.Field(), Tag: fe.Tag(), Message: fieldMessage(fe)})
		}
		return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
	case errors.As(err, &typeErr):
		return dto.NewValidationErrorResponse("Request validation failed", requestID, []dto.ValidationDetail{{
			Field:   typeErr.Field,
			Tag:     "type",
			Message: "Must be a " + typeErr.Type.String(),
		}})
	case errors.As(err, &syntaxErr):
		return dto.NewValidationErrorResponse(fmt.Sprintf("Malformed JSON at offset %d", syntaxErr.Offset), requestID, nil)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return dto.NewValidationErrorResponse("Request body is empty or truncated", requestID, nil)
	case err != nil:
		return dto.NewValidationErrorResponse(err.Error(), requestID, nil)
	}
	return dto.NewValidationErrorResponse("Request validation failed", requestID, nil)
}

// HandleValidationError writes a 400 validation error response
func HandleValidationError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, FormatValidationErrors(err, getRequestID(c)))
}

// fieldMessages maps a tag to its message; %s is the tag parameter.
var fieldMessages = map[string]string{
	"required":    "This field is required",
	"email":       "Invalid email format",
	"uuid":        "Invalid UUID format",
	"oneof":       "Must be one of: %s",
	"gte":         "Must be greater than or equal to %s",
	"lte":         "Must be less than or equal to %s",
	"gt":          "Must be greater than %s",
	"lt":          "Must be less than %s",
	"numeric":     "Must be numeric",
	"national_id": "Must be an 11-digit national ID",
	"isbn13":      "Must be a 13-digit ISBN",
	"plate":       "Invalid licence plate format",
}

// length tags read differently for strings and numbers
var lengthMessages = map[string][2]string{
	"min": {"Must be at least %s characters", "Must be at least %s"},
	"max": {"Must be at most %s characters", "Must be at most %s"},
	"len": {"Must be exactly %s characters", "Must have exactly %s items"},
}

func fieldMessage(fe validator.FieldError) string {
	format, ok := fieldMessages[fe.Tag()]
	if pair, isLength := lengthMessages[fe.Tag()]; isLength {
		format, ok = pair[1], true
		if fe.Kind() == reflect.String {
			format = pair[0]
		}
	}
	if !ok {
		return "Invalid value"
	}
	if strings.Contains(format, "%s") {
		return fmt.Sprintf(format, fe.Param())
	}
	return format
}
