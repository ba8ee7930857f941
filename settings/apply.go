package settings

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnknownKey = errors.New("unknown setting")

// Keys returns the setting names as they appear in the stored record.
func Keys() []string {
	t := reflect.TypeFor[Settings]()
	keys := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name != "" && name != "-" {
			keys = append(keys, name)
		}
	}
	return keys
}

// Apply returns s with the setting key set from its YAML text form, e.g.
// Apply("font_size", "16") or Apply("line_numbers", "false"). The result is
// normalized.
func (s Settings) Apply(key, value string) (Settings, error) {
	known := false
	for _, k := range Keys() {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		return s, fmt.Errorf("%w %q", ErrUnknownKey, key)
	}

	var val yaml.Node
	if err := yaml.Unmarshal([]byte(value), &val); err != nil {
		return s, fmt.Errorf("setting %s: %w", key, err)
	}
	doc := yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: key},
		valueNode(&val),
	}}

	next := s
	if err := doc.Decode(&next); err != nil {
		return s, fmt.Errorf("setting %s: %w", key, err)
	}
	return next.Normalize(), nil
}

func valueNode(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		return n.Content[0]
	}
	if n.Kind == 0 {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: ""}
	}
	return n
}
