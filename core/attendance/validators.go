package attendance

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-guardian/core"
)

var (
	guardianStatusTag  = "guardianstatus"
	guardianStatusText = "must be one of DEPARTED, NOT_DEPARTED"

	staffStatusTag  = "staffstatus"
	staffStatusText = "must be one of PRESENT, ABSENT"

	signalTag  = "attendancesignal"
	signalText = "must be one of pending, ok, mismatch, review"
)

// InitValidators registers the attendance validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(guardianStatusTag, func(fl validator.FieldLevel) bool {
		return GuardianStatus(fl.Field().String()).IsValid()
	})
	core.RegisterCustomTranslation(validate, translator, guardianStatusTag, guardianStatusText)

	_ = validate.RegisterValidation(staffStatusTag, func(fl validator.FieldLevel) bool {
		return StaffStatus(fl.Field().String()).IsValid()
	})
	core.RegisterCustomTranslation(validate, translator, staffStatusTag, staffStatusText)

	_ = validate.RegisterValidation(signalTag, func(fl validator.FieldLevel) bool {
		return Signal(fl.Field().String()).IsValid()
	})
	core.RegisterCustomTranslation(validate, translator, signalTag, signalText)
}
