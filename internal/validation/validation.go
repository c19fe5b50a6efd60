package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Error — ошибка проверки формы с сообщениями по полям (ключ — имя поля из json-тега).
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field возвращает сообщение для поля или пустую строку.
func (e *Error) Field(name string) string {
	return e.Fields[name]
}

// AsError извлекает *Error из цепочки ошибок.
func AsError(err error) (*Error, bool) {
	var vErr *Error
	if errors.As(err, &vErr) {
		return vErr, true
	}
	return nil, false
}

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator возвращает общий экземпляр validator с именами полей из json-тегов.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = fld.Name
			}
			return name
		})
		instance = v
	})
	return instance
}

// Struct проверяет структуру. messages переопределяет текст для обязательных полей.
func Struct(value any, messages map[string]string) error {
	err := Validator().Struct(value)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	out := &Error{Fields: make(map[string]string, len(fieldErrors))}
	for _, fe := range fieldErrors {
		name := fe.Field()
		if _, exists := out.Fields[name]; exists {
			continue
		}
		if msg, ok := messages[name]; ok && isRequiredTag(fe.Tag()) {
			out.Fields[name] = msg
			continue
		}
		out.Fields[name] = message(fe)
	}
	return out
}

func isRequiredTag(tag string) bool {
	return tag == "required" || strings.HasPrefix(tag, "required_")
}

// message возвращает человекочитаемый текст ошибки поля.
func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if", "required_unless", "required_with":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "url":
		return "Invalid URL format"
	case "numeric":
		return "Must be numeric"
	default:
		return "Invalid value"
	}
}
