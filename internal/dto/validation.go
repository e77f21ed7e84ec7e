package dto

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/course-registration-api/internal/models"
)

// NewValidator returns a validator that knows the registration domain tags:
// weekday (mon..fri), hhmm (zero padded 24h clock) and krphone (guardian mobile number).
// Field names in errors follow the JSON tags.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		return models.Weekday(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := models.ParseClock(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("krphone", func(fl validator.FieldLevel) bool {
		_, ok := models.NormalizePhone(fl.Field().String())
		return ok
	})
	return v
}
