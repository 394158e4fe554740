package http

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"cosmic-auth/internal/service"
)

// registerValidations agrega validadores custom al binding de gin.
func registerValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return service.ValidUsername(fl.Field().String())
	})
}
