package utils

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/steelstorehq/store_backend/config"
)

var validate = validator.New()

// ValidateStruct runs the struct-tag validator over an input payload and
// converts the first failure into a ValidationError.
func ValidateStruct(input interface{}) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		return NewValidationError(errs[0].Field(), "failed on '"+errs[0].Tag()+"' validation")
	}
	return err
}

// ValidateResourceId checks the id exists, returning ErrorRecordNotFound if not.
func ValidateResourceId[T any](ctx context.Context, id interface{}) error {
	db := config.GetDB()
	var count int64
	var model T
	if err := db.WithContext(ctx).Model(&model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}
