// Package tenant names the per-organization schema that holds a tenant's tables.
package tenant

import (
	"errors"
	"fmt"
	"regexp"
)

// Schema is a validated tenant schema identifier. Table references built
// from it are safe to splice into SQL text.
type Schema string

// Default is the schema used by single-tenant SQLite databases.
const Default Schema = "main"

// ErrInvalidSchema is returned when a schema name is not a plain identifier.
var ErrInvalidSchema = errors.New("invalid tenant schema")

var identRE = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Parse validates a schema name. Only lowercase identifiers are accepted so
// the name means the same thing quoted or unquoted on every backend.
func Parse(name string) (Schema, error) {
	if !identRE.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSchema, name)
	}
	return Schema(name), nil
}

// MustParse is like Parse but panics on an invalid name. Intended for tests
// and package-level constants.
func MustParse(name string) Schema {
	s, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Table returns the schema-qualified, quoted reference for a table.
func (s Schema) Table(name string) string {
	return `"` + string(s) + `".` + name
}

func (s Schema) String() string {
	return string(s)
}
