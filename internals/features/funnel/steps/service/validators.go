package service

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"unicode"

	ptBRLocale "github.com/go-playground/locales/pt_BR"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	ptBRTrans "github.com/go-playground/validator/v10/translations/pt_BR"
	"golang.org/x/text/unicode/norm"

	"funnel_backend/internals/features/funnel/steps/model"
)

// FieldError is a recoverable, field-specific input error. It never moves the cursor.
type FieldError struct {
	Field   model.Field `json:"field"`
	Message string      `json:"message"`
}

func (e *FieldError) Error() string { return string(e.Field) + ": " + e.Message }

// AsFieldError unwraps err into a *FieldError.
func AsFieldError(err error) (*FieldError, bool) {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// stepInput carries one field at a time; StructPartial validates only the active one.
type stepInput struct {
	LegalName string `label:"nome" validate:"required,min=3,max=120,fullname"`
	Phone     string `label:"celular" validate:"required,phone_br"`
	SMSCode   string `label:"código" validate:"required,len=6,number"`
	Cause     string `label:"causa" validate:"required,cause"`
	Email     string `label:"e-mail" validate:"required,email,max=254"`
}

var fieldToStruct = map[model.Field]string{
	model.FieldName:    "LegalName",
	model.FieldPhone:   "Phone",
	model.FieldSMSCode: "SMSCode",
	model.FieldCause:   "Cause",
	model.FieldEmail:   "Email",
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
	trans        ut.Translator
)

func setup() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		if l := f.Tag.Get("label"); l != "" {
			return l
		}
		return f.Name
	})

	loc := ptBRLocale.New()
	uni := ut.New(loc, loc)
	trans, _ = uni.GetTranslator("pt_BR")
	_ = ptBRTrans.RegisterDefaultTranslations(validate, trans)

	_ = validate.RegisterValidation("fullname", func(fl validator.FieldLevel) bool {
		return isFullName(fl.Field().String())
	})
	_ = validate.RegisterValidation("phone_br", func(fl validator.FieldLevel) bool {
		n := len(Digits(fl.Field().String()))
		return n == 10 || n == 11
	})
	_ = validate.RegisterValidation("cause", func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		for _, c := range model.Causes {
			if c == v {
				return true
			}
		}
		return false
	})

	custom := map[string]string{
		"fullname": "{0} deve conter nome e sobrenome",
		"phone_br": "{0} deve ter DDD e número",
		"cause":    "{0} deve ser uma das opções disponíveis",
		"number":   "{0} deve conter apenas dígitos",
	}
	for tag, text := range custom {
		tag, text := tag, text
		_ = validate.RegisterTranslation(tag, trans,
			func(u ut.Translator) error { return u.Add(tag, text, true) },
			func(u ut.Translator, fe validator.FieldError) string {
				t, _ := u.T(tag, fe.Field())
				return t
			},
		)
	}
}

// Validator exposes the shared validator for DTO validation elsewhere.
func Validator() *validator.Validate {
	validateOnce.Do(setup)
	return validate
}

// ValidateField checks value against the rules of field. FieldNone always passes.
func ValidateField(field model.Field, value string) error {
	validateOnce.Do(setup)

	name, ok := fieldToStruct[field]
	if !ok {
		return nil
	}

	if field == model.FieldName {
		value = NormalizeName(value)
	}
	in := stepInput{}
	reflect.ValueOf(&in).Elem().FieldByName(name).SetString(strings.TrimSpace(value))

	err := validate.StructPartial(in, name)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &FieldError{Field: field, Message: verrs[0].Translate(trans)}
	}
	return &FieldError{Field: field, Message: err.Error()}
}

// TranslateAll maps validator errors of a DTO to field → messages.
func TranslateAll(err error) map[string][]string {
	validateOnce.Do(setup)
	out := map[string][]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["_"] = []string{err.Error()}
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = append(out[fe.Field()], fe.Translate(trans))
	}
	return out
}

// NormalizeName composes accents (NFC) and collapses whitespace, so
// "Jose\u0301  Silva" and "José Silva" validate and store the same way.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// Digits strips everything that is not 0-9.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isFullName(s string) bool {
	parts := strings.Fields(s)
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsLetter(r) && r != '\'' && r != '-' && r != '.' {
				return false
			}
		}
	}
	return true
}
