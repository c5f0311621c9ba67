package roster

import (
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ParseYAML reads either a top-level list of entries or a mapping with a
// "people" list.
func ParseYAML(source string, data []byte) (*Batch, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "roster: yaml: parse %s", source)
	}
	b := &Batch{Source: source}
	if len(doc.Content) == 0 {
		return b, nil
	}

	root := doc.Content[0]
	var entries []Entry
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&entries); err != nil {
			return nil, eris.Wrapf(err, "roster: yaml: decode %s", source)
		}
	case yaml.MappingNode:
		var wrapper struct {
			People []Entry `yaml:"people"`
		}
		if err := root.Decode(&wrapper); err != nil {
			return nil, eris.Wrapf(err, "roster: yaml: decode %s", source)
		}
		entries = wrapper.People
	default:
		return nil, eris.Errorf("roster: yaml: %s: expected a list or a mapping with a people key", source)
	}

	for i, e := range entries {
		b.add(i+1, e)
	}
	return b, nil
}

// UnmarshalYAML accepts recipients as a list or as one comma-separated string.
func (r *Recipients) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*r = Recipients{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*r = list
		return nil
	default:
		return eris.Errorf("roster: yaml: line %d: recipients must be a string or a list", node.Line)
	}
}
