package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
)

// FieldValidationError はozzo-validationのフィールドエラーを、フィールド名をキーとするdetails付きの
// VALIDATION_FAILEDに変換する。validation.Errors以外のエラーにはnilを返す。
func FieldValidationError(err error) *APIError {
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return nil
	}
	details := make(map[string]string, len(fieldErrs))
	for field, fe := range fieldErrs {
		details[field] = fe.Error()
	}
	return NewValidationError(details)
}
