package chessdto

import (
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("uci", func(fl validator.FieldLevel) bool {
		_, err := ParseMove(fl.Field().String())
		return err == nil
	})
}

// ValidateEvaluation checks an already-decoded snapshot.
func ValidateEvaluation(e *Evaluation) error {
	if e == nil {
		return nil
	}
	return validate.Struct(e)
}

// ValidateSession checks an already-decoded session snapshot.
func ValidateSession(s *GameSession) error {
	if s == nil {
		return errNilSession
	}
	return validate.Struct(s)
}
