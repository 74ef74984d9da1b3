package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`             // Error message
	Code    string            `json:"code,omitempty"`    // Stable machine-readable code
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return &ValidationHelper{
		validator: v,
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// ValidateVar validates a single value against a validator tag
func (vh *ValidationHelper) ValidateVar(field any, tag string) error {
	return vh.validator.Var(field, tag)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	sendError(w, statusCode, ErrorResponse{Error: message}, validationErr)
}

// WriteLedgerError renders err with the status of its LedgerError kind.
// Anything else is logged and hidden behind a 500.
func WriteLedgerError(w http.ResponseWriter, err error) {
	le, ok := AsLedgerError(err)
	if !ok {
		log.Printf("[HTTP] Internal error: %v", err)
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}

	sendError(w, le.StatusCode(), ErrorResponse{Error: err.Error(), Code: le.Code}, nil)
}

func sendError(w http.ResponseWriter, statusCode int, errorResp ErrorResponse, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	var validationErrors validator.ValidationErrors
	if errors.As(validationErr, &validationErrors) {
		errorResp.Details = make(map[string]string)
		for _, err := range validationErrors {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}
