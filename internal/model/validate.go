package model

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the identity keys of a field set.
// The first violation is returned as *ValidationError.
func (f FieldSet) Validate() error {
	err := getValidator().Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &ValidationError{
			Field: strings.ToLower(verrs[0].Field()),
			Tag:   verrs[0].Tag(),
		}
	}
	return err
}
