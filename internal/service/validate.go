package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidRequest = errors.New("请求参数不合法")
	validate          = validator.New()
)

// ValidationError 字段名 -> 未通过的校验规则
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, tag := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", f, tag))
	}
	sort.Strings(parts)
	return fmt.Sprintf("%v: %s", ErrInvalidRequest, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

func validateStruct(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	fields := make(map[string]string, len(ves))
	for _, ve := range ves {
		fields[ve.Field()] = ve.Tag()
	}
	return &ValidationError{Fields: fields}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
