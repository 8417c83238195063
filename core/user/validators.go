package user

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/telecom-etude/erp/core"
)

var (
	positionTag  = "position"
	positionText = "invalid position"
)

// InitValidators registers the user package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(positionTag, positionValidation)
	core.RegisterCustomTranslation(validate, translator, positionTag, positionText)
}

func positionValidation(fl validator.FieldLevel) bool {
	return ValidPosition(fl.Field().String())
}
