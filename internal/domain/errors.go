package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the record store and derived views.
var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrNoGraphic        = errors.New("no anatomy graphic available for gender")
	ErrMalformedGraphic = errors.New("malformed anatomy graphic")
	ErrDatasetMissing   = errors.New("required dataset missing")
	ErrDatasetEmpty     = errors.New("required dataset empty")
	ErrDatasetInvalid   = errors.New("required dataset invalid")
)

// Error codes for different failure scenarios
const (
	ErrCodeDatasetMissing = "DATASET_MISSING"
	ErrCodeDatasetEmpty   = "DATASET_EMPTY"
	ErrCodeDatasetInvalid = "DATASET_INVALID"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
	ErrCodeRateLimit      = "RATE_LIMIT_EXCEEDED"
)

// DatasetError describes a fatal problem with a required dataset at load time.
type DatasetError struct {
	Code      string    `json:"code"`
	Dataset   string    `json:"dataset"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	sentinel  error
	err       error
}

// Error implements the error interface
func (e *DatasetError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s (%s)", e.Code, e.Dataset, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Dataset, e.Message)
}

// Unwrap returns the sentinel matching the error code and, when present, the underlying
// error, so errors.Is matches either.
func (e *DatasetError) Unwrap() []error {
	if e.err == nil {
		return []error{e.sentinel}
	}
	return []error{e.sentinel, e.err}
}

// NewDatasetMissingError reports a dataset that could not be found or opened.
func NewDatasetMissingError(dataset string, err error) *DatasetError {
	return newDatasetError(ErrCodeDatasetMissing, ErrDatasetMissing, dataset, "dataset is missing", err)
}

// NewDatasetEmptyError reports a dataset that exists but holds no records.
func NewDatasetEmptyError(dataset string) *DatasetError {
	return newDatasetError(ErrCodeDatasetEmpty, ErrDatasetEmpty, dataset, "dataset is empty", nil)
}

// NewDatasetInvalidError reports a dataset with structural problems.
func NewDatasetInvalidError(dataset, message string, err error) *DatasetError {
	return newDatasetError(ErrCodeDatasetInvalid, ErrDatasetInvalid, dataset, message, err)
}

func newDatasetError(code string, sentinel error, dataset, message string, err error) *DatasetError {
	de := &DatasetError{
		Code:      code,
		Dataset:   dataset,
		Message:   message,
		Timestamp: time.Now().UTC(),
		sentinel:  sentinel,
		err:       err,
	}
	if err != nil {
		de.Details = err.Error()
	}
	return de
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
