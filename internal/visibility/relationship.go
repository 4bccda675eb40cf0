package visibility

import "strings"

// Relationship is the context a viewer acts in for one request.
type Relationship int

const (
	Direct Relationship = iota + 1
	Supervisor
	Alias
	Collaborator
	Admin
)

var relationshipNames = map[Relationship]string{
	Direct:       "direct",
	Supervisor:   "supervisor",
	Alias:        "alias",
	Collaborator: "collaborator",
	Admin:        "admin",
}

func (r Relationship) String() string {
	if name, ok := relationshipNames[r]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether r is one of the defined relationships.
func (r Relationship) Valid() bool {
	_, ok := relationshipNames[r]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (r Relationship) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, &InvalidRelationshipError{Value: r.String()}
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Relationship) UnmarshalText(text []byte) error {
	parsed, err := ParseRelationship(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRelationship converts a relationship name (case-insensitive) to a
// Relationship.
func ParseRelationship(s string) (Relationship, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for r, name := range relationshipNames {
		if name == want {
			return r, nil
		}
	}
	return 0, &InvalidRelationshipError{Value: s}
}

// Relationships lists every relationship in declaration order.
func Relationships() []Relationship {
	return []Relationship{Direct, Supervisor, Alias, Collaborator, Admin}
}
