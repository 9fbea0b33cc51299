package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Report json field names instead of Go field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("evmaddress", func(fl validator.FieldLevel) bool {
		return ValidateAddress(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("basicemail", func(fl validator.FieldLevel) bool {
		return IsBasicEmail(fl.Field().String())
	})
	_ = validate.RegisterValidation("txhash", func(fl validator.FieldLevel) bool {
		return ValidateTransactionHash(fl.Field().String()) == nil
	})
}

// Validator exposes the shared validator instance.
func Validator() *validator.Validate {
	return validate
}

// ValidateStruct runs struct-tag validation and flattens the result into a
// FieldErrors map keyed by json field name.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return fields
}

// FieldErrors maps a field name to a human-readable message.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+": "+v)
	}
	sort.Strings(parts)
	return "validation failed: " + strings.Join(parts, "; ")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "basicemail":
		return "must be a valid email"
	case "evmaddress":
		return "must be a 0x-prefixed 20-byte address"
	case "txhash":
		return "must be a 0x-prefixed 32-byte hash"
	case "min", "gt", "gte":
		return "must be at least " + fe.Param()
	case "max", "lt", "lte":
		return "must be at most " + fe.Param()
	case "url":
		return "must be a URL"
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}

// DecodeJSON strictly decodes data into v and validates it.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return ValidateStruct(v)
}

// NormalizeJSON formats JSON with consistent indentation
func NormalizeJSON(data interface{}) ([]byte, error) {
	return json.MarshalIndent(data, "", "  ")
}
