package note

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// Field names as they appear on the wire and in validation errors.
const (
	FieldTitle   = "title"
	FieldContent = "content"
	FieldTag     = "tag"
)

// Validation messages shown next to form fields.
const (
	MsgTitleRequired = "Title is required"
	MsgTitleMin      = "Minimum 3 characters required"
	MsgTitleMax      = "Maximum 50 characters required"
	MsgContentMax    = "Content must be at most 500 characters"
	MsgTagRequired   = "Tag is required"
	MsgTagInvalid    = "Invalid tag"
)

var draftFieldOrder = []string{FieldTitle, FieldContent, FieldTag}

// Validate checks d against the note field rules. A failing draft yields
// validation.Errors keyed by field name, with one error per field.
func (d Draft) Validate() error {
	tags := make([]any, 0, len(Tags()))
	for _, t := range Tags() {
		tags = append(tags, t)
	}

	return validation.ValidateStruct(&d,
		validation.Field(&d.Title,
			validation.Required.Error(MsgTitleRequired),
			validation.RuneLength(TitleMinLength, 0).Error(MsgTitleMin),
			validation.RuneLength(0, TitleMaxLength).Error(MsgTitleMax),
		),
		validation.Field(&d.Content,
			validation.RuneLength(0, ContentMaxLength).Error(MsgContentMax),
		),
		validation.Field(&d.Tag,
			validation.Required.Error(MsgTagRequired),
			validation.In(tags...).Error(MsgTagInvalid),
		),
	)
}

// FieldErrors returns the field errors of d ordered title, content, tag.
// It is empty for a valid draft.
func (d Draft) FieldErrors() goerrors.ValidationErrors {
	return OrderedFieldErrors(d.Validate())
}

// OrderedFieldErrors flattens an ozzo validation result into field errors in
// form order. Unknown fields follow in no particular order.
func OrderedFieldErrors(err error) goerrors.ValidationErrors {
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return goerrors.ValidationErrors{{Message: err.Error()}}
	}

	out := make(goerrors.ValidationErrors, 0, len(verrs))
	seen := make(map[string]bool, len(verrs))
	for _, field := range draftFieldOrder {
		if ferr, ok := verrs[field]; ok && ferr != nil {
			out = append(out, goerrors.FieldError{Field: field, Message: ferr.Error()})
			seen[field] = true
		}
	}
	for field, ferr := range verrs {
		if !seen[field] && ferr != nil {
			out = append(out, goerrors.FieldError{Field: field, Message: ferr.Error()})
		}
	}
	return out
}

// NewValidationError reports a rejected draft.
func NewValidationError(fields goerrors.ValidationErrors) *goerrors.Error {
	return goerrors.NewValidation("invalid note", fields...).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(goerrors.HTTPStatusToTextCode(http.StatusUnprocessableEntity))
}
