// Package validation provides input validation helpers for the Sahaay API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

var (
	// phoneRegex validates Indian mobile numbers (10 digits, optional +91)
	phoneRegex = regexp.MustCompile(`^(\+91)?[6-9][0-9]{9}$`)
	// upiRegex validates UPI virtual payment addresses (user@bank)
	upiRegex = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z][a-zA-Z0-9]{1,64}$`)
	// userIDRegex validates internal user IDs (usr_ + 24 hex chars)
	userIDRegex = regexp.MustCompile(`^usr_[a-f0-9]{24}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidPhone checks if a string is a valid Indian mobile number
func IsValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

// IsValidUPI checks if a string is a valid UPI virtual payment address
func IsValidUPI(upi string) bool {
	return upiRegex.MatchString(upi)
}

// IsValidUserID checks if a string is a well-formed internal user ID
func IsValidUserID(id string) bool {
	return userIDRegex.MatchString(id)
}

// IsValidCoordinate checks latitude/longitude bounds
func IsValidCoordinate(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidPhone checks if a field is a valid mobile number
func ValidPhone(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidPhone(value) {
			return &ValidationError{Field: field, Message: "must be a valid mobile number"}
		}
		return nil
	}
}

// ValidUPI checks if a field is a valid UPI address
func ValidUPI(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidUPI(value) {
			return &ValidationError{Field: field, Message: "must be a valid UPI address (name@bank)"}
		}
		return nil
	}
}

// ValidUserID checks if a field is a well-formed user ID
func ValidUserID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidUserID(value) {
			return &ValidationError{Field: field, Message: "must be a valid user ID (usr_...)"}
		}
		return nil
	}
}

// PositiveAmount checks that an amount in rupees is positive
func PositiveAmount(field string, value int64) func() *ValidationError {
	return func() *ValidationError {
		if value <= 0 {
			return &ValidationError{Field: field, Message: "must be a positive amount"}
		}
		return nil
	}
}

// ValidCoordinates checks latitude/longitude bounds
func ValidCoordinates(field string, lat, lng float64) func() *ValidationError {
	return func() *ValidationError {
		if !IsValidCoordinate(lat, lng) {
			return &ValidationError{Field: field, Message: "must be valid lat/lng coordinates"}
		}
		return nil
	}
}
