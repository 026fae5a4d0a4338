// Package strutil converts environment-variable strings into the
// concrete Go types internal/config's fallback-typed getters want, so
// internal/config doesn't hand-roll a strconv switch per field kind.
package strutil

import (
	"fmt"
	"reflect"
	"strconv"
)

// Stov parses value as typ.Kind(), using fallback's own type to pick the
// parser the way internal/config's getenvIntDefault does: pass
// reflect.TypeOf(fallback) so a badly-typed env var and a missing one are
// handled by the same call site.
func Stov(value string, typ reflect.Type) (any, error) {
	if typ.Kind() == reflect.String {
		return value, nil
	}

	switch typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.ParseInt(value, 10, 64)
	case reflect.Float32, reflect.Float64:
		return strconv.ParseFloat(value, 64)
	case reflect.Bool:
		return strconv.ParseBool(value)
	}

	return nil, fmt.Errorf("strutil: unsupported env var kind %s", typ.Kind())
}
