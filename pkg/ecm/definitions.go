package ecm

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed definitions.yaml
var defaultDefinitions []byte

// definitionFile is the on-disk layout of a type definition source.
type definitionFile struct {
	NodeTypes []TypeDefinition `yaml:"node_types"`
	Mixins    []TypeDefinition `yaml:"mixins"`
}

// ParseTypeDefinitions decodes a YAML definition source. Names must be
// non-empty and unique; supertypes must be declared in the same source.
func ParseTypeDefinitions(r io.Reader) ([]TypeDefinition, error) {
	var file definitionFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode type definitions: %w", err)
	}

	defs := make([]TypeDefinition, 0, len(file.NodeTypes)+len(file.Mixins))
	for _, d := range file.NodeTypes {
		d.Mixin = false
		defs = append(defs, d)
	}
	for _, d := range file.Mixins {
		d.Mixin = true
		defs = append(defs, d)
	}

	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("type definition %d: name is required", i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("type definition %q declared twice", d.Name)
		}
		seen[d.Name] = true
	}
	for _, d := range defs {
		for _, st := range d.Supertypes {
			if !seen[st] {
				return nil, fmt.Errorf("type definition %q: unknown supertype %q", d.Name, st)
			}
		}
	}
	return defs, nil
}

// DefaultDefinitionsSource returns the YAML source of the built-in node types
// and mixins, ready for Service.RegisterTypeDefinitions.
func DefaultDefinitionsSource() io.Reader {
	return bytes.NewReader(defaultDefinitions)
}

// DefaultTypeDefinitions returns the built-in node types and mixins.
func DefaultTypeDefinitions() []TypeDefinition {
	defs, err := ParseTypeDefinitions(bytes.NewReader(defaultDefinitions))
	if err != nil {
		panic(fmt.Sprintf("ecm: built-in type definitions are invalid: %v", err))
	}
	return defs
}

// checkDefinitions verifies that node only references registered types.
// Nothing is checked while the registry is empty.
func checkDefinitions(defs []TypeDefinition, node *Node) error {
	if len(defs) == 0 {
		return nil
	}
	byName := make(map[string]TypeDefinition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	if d, ok := byName[node.NodeType]; !ok || d.Mixin {
		return fmt.Errorf("%w: node type %q", ErrUnknownNodeType, node.NodeType)
	}
	for _, m := range node.Mixins {
		if d, ok := byName[m]; !ok || !d.Mixin {
			return fmt.Errorf("%w: mixin %q", ErrUnknownNodeType, m)
		}
	}
	return nil
}
