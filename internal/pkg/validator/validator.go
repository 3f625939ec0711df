package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Register custom validations
	registerCustomValidations()
}

func registerCustomValidations() {
	// Potion category validation
	validate.RegisterValidation("potion", func(fl validator.FieldLevel) bool {
		potion := fl.Field().String()
		validPotions := []string{"romance", "historical", "mystery", "horror", "fairytale", "fantasy"}
		for _, p := range validPotions {
			if potion == p {
				return true
			}
		}
		return false
	})

	// Account sort field validation
	validate.RegisterValidation("sort_field", func(fl validator.FieldLevel) bool {
		field := fl.Field().String()
		validFields := []string{"", "createdAt", "lastLoginAt", "point", "displayName", "premium", "status"}
		for _, f := range validFields {
			if field == f {
				return true
			}
		}
		return false
	})

	// Account status validation
	validate.RegisterValidation("account_status", func(fl validator.FieldLevel) bool {
		status := fl.Field().String()
		validStatuses := []string{"", "normal", "suspended", "withdrawn"}
		for _, s := range validStatuses {
			if status == s {
				return true
			}
		}
		return false
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "email":
			errors[field] = "Invalid email format"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gt":
			errors[field] = "Value must be greater than " + err.Param()
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "potion":
			errors[field] = "Invalid potion. Must be: romance, historical, mystery, horror, fairytale, or fantasy"
		case "sort_field":
			errors[field] = "Invalid sort field"
		case "account_status":
			errors[field] = "Invalid status. Must be: normal, suspended, or withdrawn"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
