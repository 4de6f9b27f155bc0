package model

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"gopkg.in/go-playground/validator.v9"
)

var tagPattern = regexp.MustCompile(`^[\w\s-]+$`)

var validate, translator = newValidator()

func newValidator() (*validator.Validate, ut.Translator) {
	v := validator.New()
	trans, found := ut.New(en.New(), en.New()).GetTranslator("en")
	if !found {
		panic("model: no english translator")
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return !IsBlank(fl.Field().String())
	}))
	mustRegister(v.RegisterValidation("tagword", func(fl validator.FieldLevel) bool {
		return tagPattern.MatchString(fl.Field().String())
	}))

	mustRegister(registerMessage(v, trans, "notblank", "{0} is required"))
	mustRegister(registerMessage(v, trans, "tagword", "Tags must be comma-separated words"))

	return v, trans
}

func mustRegister(err error) {
	if err != nil {
		panic("model: " + err.Error())
	}
}

// registerMessage adds an English message for tag. {0} is the capitalized
// JSON name of the failing field.
func registerMessage(v *validator.Validate, trans ut.Translator, tag, text string) error {
	return v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, text, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, err := ut.T(tag, fieldLabel(fe.Field()))
			if err != nil {
				return fe.Field() + " failed " + fe.Tag()
			}
			return msg
		},
	)
}

// fieldLabel turns "content" or "tags[2]" into "Content" or "Tags".
func fieldLabel(field string) string {
	name := fieldName(field)
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// Slice elements are reported as "tags[2]".
func fieldName(field string) string {
	name, _, _ := strings.Cut(field, "[")
	return name
}

// ValidationError carries field-level messages keyed by the JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ValidateForPublish checks the fields a post needs before it can be
// published: a title, a body, and well-formed tags.
func ValidateForPublish(d Draft) error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	verr := &ValidationError{Fields: make(map[string]string)}
	for _, fe := range fieldErrs {
		verr.Fields[fieldName(fe.Field())] = fe.Translate(translator)
	}
	return verr
}
