package schema

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultGeneration is used when no schema is configured.
const DefaultGeneration = "march2022"

var generations = map[string]*Schema{
	Legacy.Name():    Legacy,
	March2022.Name(): March2022,
}

// Generations returns the known schema generation names, sorted.
func Generations() []string {
	names := make([]string, 0, len(generations))
	for name := range generations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByName returns the schema generation with the given name. Matching is
// case-insensitive; an empty name selects DefaultGeneration.
func ByName(name string) (*Schema, error) {
	if name == "" {
		name = DefaultGeneration
	}
	s, ok := generations[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q (known: %s)", name, strings.Join(Generations(), ", "))
	}
	return s, nil
}
