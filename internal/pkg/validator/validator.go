package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

// Saudi mobile numbers, local or international form.
var saudiPhonePattern = regexp.MustCompile(`^(\+9665|009665|05)[0-9]{8}$`)

// Non-negative SAR amount with at most two decimals.
var moneyPattern = regexp.MustCompile(`^[0-9]{1,8}(\.[0-9]{1,2})?$`)

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

	registerCustomValidations()
}

func registerCustomValidations() {
	validate.RegisterValidation("role", oneOf("customer", "cashier", "admin"))
	validate.RegisterValidation("order_status", oneOf("pending", "preparing", "ready", "completed"))
	validate.RegisterValidation("product_category", oneOf("hot_drinks", "cold_drinks", "desserts", "food", "beans"))
	validate.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		return moneyPattern.MatchString(fl.Field().String())
	})
	validate.RegisterValidation("sa_phone", func(fl validator.FieldLevel) bool {
		phone := fl.Field().String()
		return phone == "" || saudiPhonePattern.MatchString(phone)
	})
	validate.RegisterValidation("request_id", func(fl validator.FieldLevel) bool {
		id := fl.Field().String()
		if len(id) < 8 || len(id) > 64 {
			return false
		}
		for _, r := range id {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
				return false
			}
		}
		return true
	})
}

func oneOf(values ...string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		for _, allowed := range values {
			if v == allowed {
				return true
			}
		}
		return false
	}
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": "Invalid request"}
	}

	errors := make(map[string]string)
	for _, err := range validationErrors {
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
		case "latitude":
			errors[field] = "Invalid latitude"
		case "longitude":
			errors[field] = "Invalid longitude"
		case "role":
			errors[field] = "Invalid role. Must be: customer, cashier, or admin"
		case "order_status":
			errors[field] = "Invalid status. Must be: pending, preparing, ready, or completed"
		case "product_category":
			errors[field] = "Invalid category. Must be: hot_drinks, cold_drinks, desserts, food, or beans"
		case "money":
			errors[field] = "Invalid amount. Use a non-negative number with at most 2 decimals"
		case "sa_phone":
			errors[field] = "Invalid phone number. Use 05XXXXXXXX or +9665XXXXXXXX"
		case "request_id":
			errors[field] = "Request ID must be 8-64 characters of letters, digits, '-' or '_'"
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
