package otp

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-guardian/core"
)

var (
	otpCodeTag  = "otpcode"
	otpCodeText = "must be a 6-digit code"
)

// InitValidators registers the otp validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(otpCodeTag, func(fl validator.FieldLevel) bool {
		return IsWellFormedCode(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, otpCodeTag, otpCodeText)
}
