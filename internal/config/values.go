package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// StringList accepts a YAML scalar or a sequence of scalars.
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			*l = nil
			return nil
		}
		*l = StringList{node.Value}
	case yaml.SequenceNode:
		out := make(StringList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected a scalar list item", item.Line)
			}
			out = append(out, item.Value)
		}
		*l = out
	default:
		return fmt.Errorf("line %d: expected a scalar or a list", node.Line)
	}
	return nil
}

// Area is a north, west, south, east bounding box. Nil is the whole globe.
type Area []float64

// ParseArea parses "global" or four comma-separated numbers.
func ParseArea(s string) (Area, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "global") {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	area := make(Area, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid area %q: %w", s, err)
		}
		area = append(area, v)
	}
	return area, nil
}

func (a *Area) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		parsed, err := ParseArea(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*a = parsed
	case yaml.SequenceNode:
		out := make(Area, 0, len(node.Content))
		for _, item := range node.Content {
			v, err := strconv.ParseFloat(item.Value, 64)
			if err != nil {
				return fmt.Errorf("line %d: invalid area value %q", item.Line, item.Value)
			}
			out = append(out, v)
		}
		*a = out
	default:
		return fmt.Errorf("line %d: area must be \"global\" or four numbers", node.Line)
	}
	return nil
}

func (a Area) String() string {
	if len(a) == 0 {
		return "global"
	}
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (a Area) validate() error {
	if len(a) == 0 {
		return nil
	}
	if len(a) != 4 {
		return invalid("area", "expected north, west, south, east, got %d values", len(a))
	}
	north, west, south, east := a[0], a[1], a[2], a[3]
	if north < -90 || north > 90 || south < -90 || south > 90 {
		return invalid("area", "latitudes must lie in [-90, 90]")
	}
	if north < south {
		return invalid("area", "north %g is below south %g", north, south)
	}
	if west < -180 || west > 360 || east < -180 || east > 360 {
		return invalid("area", "longitudes must lie in [-180, 360]")
	}
	return nil
}
