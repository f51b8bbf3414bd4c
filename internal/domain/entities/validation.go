package entities

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/zatekoja/reviewgate/backend/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(feedbackRecordRules, FeedbackRecord{})
	return v
}

// feedbackRecordRules enforces the sentiment/contact-field pairing: negative
// records carry all three contact fields, everything else carries none.
func feedbackRecordRules(sl validator.StructLevel) {
	r := sl.Current().Interface().(FeedbackRecord)

	fields := []struct{ name, value string }{
		{"CustomerName", r.CustomerName},
		{"CustomerPhone", r.CustomerPhone},
		{"CustomerMessage", r.CustomerMessage},
	}
	for _, f := range fields {
		name, value := f.name, f.value
		blank := strings.TrimSpace(value) == ""
		switch {
		case r.Sentiment == SentimentNegative && blank:
			sl.ReportError(value, name, name, "required_for_negative", "")
		case r.Sentiment != SentimentNegative && !blank:
			sl.ReportError(value, name, name, "forbidden_for_"+string(r.Sentiment), "")
		}
	}
}

// Validate checks the record's shape rules.
func (r FeedbackRecord) Validate() error {
	return validationError(validate.Struct(r))
}

// Validate checks that every complaint field is present.
func (c Complaint) Validate() error {
	return validationError(validate.Struct(c))
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError(err.Error())
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return apperrors.NewValidationError(strings.Join(msgs, "; "))
}
