package handler

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"Clubs_Hub/internal/model"
)

// RegisterValidators 向 gin 的 validator 注册业务枚举校验
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	rules := map[string]func(string) bool{
		"club_category": func(s string) bool { return model.ClubCategory(s).Valid() },
		"club_role":     func(s string) bool { return model.ClubRole(s).Valid() },
		"global_role":   func(s string) bool { return model.GlobalRole(s).Valid() },
		"event_action":  func(s string) bool { return model.EventAction(s).Valid() },
	}
	for tag, fn := range rules {
		fn := fn
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return fn(fl.Field().String())
		}); err != nil {
			return err
		}
	}
	return nil
}
