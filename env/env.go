package env

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/chaingraph/indexer/service/logger"
)

var validators = map[string][]string{}

var v = validator.New()

func init() {
	v.RegisterValidation("required_for_env", requiredForEnv)
}

// RegisterValidation records validator tags to be checked against name every time Get is called for it.
func RegisterValidation(name string, tags ...string) {
	validators[name] = dedupe(append(validators[name], tags...))
}

// Get reads name from viper, logging (but not failing) if it fails any tag registered via RegisterValidation.
func Get[T any](ctx context.Context, name string) T {
	raw := viper.Get(name)

	for _, tag := range validators[name] {
		if err := v.Var(raw, tag); err != nil {
			logger.For(ctx).Errorf("invalid env var: %s, tag: %s, err: %s", name, tag, err.Error())
		}
	}

	it, ok := raw.(T)
	if !ok {
		if reflect.ValueOf(raw).IsZero() {
			return *new(T)
		}
		logger.For(ctx).Errorf("invalid env var: %s, expected type: %T, got: %T", name, *new(T), raw)
		return *new(T)
	}

	return it
}

// GetString is a convenience wrapper around Get for the common string case.
func GetString(name string) string {
	return Get[string](context.Background(), name)
}

// GetInt is a convenience wrapper around Get for the common int case.
func GetInt(name string) int {
	return Get[int](context.Background(), name)
}

// GetBool is a convenience wrapper around Get for the common bool case.
func GetBool(name string) bool {
	return Get[bool](context.Background(), name)
}

var requiredForEnv validator.Func = func(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return false
	}
	spl := strings.Split(s, "=")
	if len(spl) != 2 {
		return false
	}
	return spl[1] == GetString("ENV")
}

func dedupe(src []string) []string {
	result := src[:0]
	seen := make(map[string]bool, len(src))
	for _, x := range src {
		if !seen[x] {
			result = append(result, x)
			seen[x] = true
		}
	}
	return result
}
