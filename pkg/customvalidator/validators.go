package customvalidator

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"food-delivery/internal/entities"
)

var postalCodeRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 -]{1,14}$`)

// RegisterCustomValidations регистрирует правила, которых нет в validator/v10.
func RegisterCustomValidations(v *validator.Validate) error {
	if err := v.RegisterValidation("order_status", isOrderStatus); err != nil {
		return err
	}
	if err := v.RegisterValidation("postal_code", isPostalCode); err != nil {
		return err
	}
	if err := v.RegisterValidation("not_blank", isNotBlank); err != nil {
		return err
	}
	return nil
}

func isOrderStatus(fl validator.FieldLevel) bool {
	return entities.OrderStatus(fl.Field().String()).IsValid()
}

func isPostalCode(fl validator.FieldLevel) bool {
	return postalCodeRe.MatchString(fl.Field().String())
}

func isNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
