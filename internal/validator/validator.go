package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

var (
	pkgNamePattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,63}$`)
	pkgVersionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+(?:[-+][0-9A-Za-z.-]+)?$`)
	actionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
)

func init() {
	validate = validator.New()

	// Register custom validators
	validate.RegisterValidation("pkgname", validatePackageName)
	validate.RegisterValidation("pkgversion", validatePackageVersion)
	validate.RegisterValidation("actionname", validateActionName)
}

// ValidateStruct validates a struct and returns user-friendly error messages
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// ValidateRequest validates a request struct and returns formatted errors
// Returns nil if validation passes, or a map of field errors
func ValidateRequest(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			field := strings.ToLower(e.Field())
			errors[field] = formatValidationError(e)
		}
	}

	return errors
}

// formatValidationError converts validator errors to human-readable messages
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "min":
		return fmt.Sprintf("Must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters", e.Param())
	case "uuid":
		return "Must be a valid UUID"
	case "url":
		return "Must be a valid URL"
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", e.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("Must be less than or equal to %s", e.Param())
	case "pkgname":
		return "Must be a lowercase package name (letters, digits, hyphens, underscores)"
	case "pkgversion":
		return "Must be a semantic version, e.g. 1.2.3"
	case "actionname":
		return "Must be a lowercase identifier, e.g. run_tool"
	default:
		return fmt.Sprintf("Validation failed: %s", e.Tag())
	}
}

// Custom Validators

// validatePackageName enforces the on-disk/socket-path-safe package name
// shape: lowercase, digits, hyphens and underscores only, matching how
// package directories and socket paths are derived from it.
func validatePackageName(fl validator.FieldLevel) bool {
	return pkgNamePattern.MatchString(fl.Field().String())
}

// validatePackageVersion requires a semantic version, since it is embedded
// directly in the child worker's process key and extension path.
func validatePackageVersion(fl validator.FieldLevel) bool {
	return pkgVersionPattern.MatchString(fl.Field().String())
}

// validateActionName restricts tool/action names to the identifier shape
// the plugin registry keys its lookups with.
func validateActionName(fl validator.FieldLevel) bool {
	return actionNamePattern.MatchString(fl.Field().String())
}
