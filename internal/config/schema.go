package config

import (
	"bytes"
	"fmt"
	"os"
	"profileflow/pkg/domain"

	"gopkg.in/yaml.v3"
)

// sectionAliases maps legacy section names to their roles.
var sectionAliases = map[string]domain.Role{
	"raw":       domain.RoleRaw,
	"2a":        domain.RoleRaw,
	"amendment": domain.RoleAmendment,
	"2b":        domain.RoleAmendment,
	"processed": domain.RoleProcessed,
	"3ab":       domain.RoleProcessed,
}

// LoadSchema reads a mapping file. See ParseSchema.
func LoadSchema(path string) (domain.Schema, error) {
	b, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return domain.Schema{}, fmt.Errorf("read schema: %w", err)
	}
	s, err := ParseSchema(b)
	if err != nil {
		return domain.Schema{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSchema decodes a YAML document with raw, amendment and processed
// sections (or their legacy names 2a, 2b, 3ab), each an ordered mapping of
// semantic key to column name. Key order is kept. Unknown sections are
// rejected.
func ParseSchema(b []byte) (domain.Schema, error) {
	var doc yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&doc); err != nil {
		return domain.Schema{}, fmt.Errorf("parse schema: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return domain.Schema{}, fmt.Errorf("parse schema: top level must be a mapping: %w", domain.ErrInvalidSchema)
	}
	root := doc.Content[0]
	sections := map[domain.Role]domain.Mapping{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name, body := root.Content[i], root.Content[i+1]
		role, ok := sectionAliases[name.Value]
		if !ok {
			return domain.Schema{}, fmt.Errorf("line %d: unknown section %q: %w", name.Line, name.Value, domain.ErrInvalidSchema)
		}
		if _, dup := sections[role]; dup {
			return domain.Schema{}, fmt.Errorf("line %d: section %q repeats %s: %w", name.Line, name.Value, role, domain.ErrInvalidSchema)
		}
		m, err := parseMapping(body)
		if err != nil {
			return domain.Schema{}, fmt.Errorf("section %q: %w", name.Value, err)
		}
		sections[role] = m
	}
	s := domain.Schema{
		Raw:       sections[domain.RoleRaw],
		Amendment: sections[domain.RoleAmendment],
		Processed: sections[domain.RoleProcessed],
	}
	if err := s.Check(); err != nil {
		return domain.Schema{}, err
	}
	return s, nil
}

func parseMapping(n *yaml.Node) (domain.Mapping, error) {
	if n.Kind != yaml.MappingNode {
		return domain.Mapping{}, fmt.Errorf("line %d: want a mapping of key to column: %w", n.Line, domain.ErrInvalidSchema)
	}
	fields := make([]domain.Field, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode || v.Value == "" {
			return domain.Mapping{}, fmt.Errorf("line %d: key %q needs a column name: %w", k.Line, k.Value, domain.ErrInvalidSchema)
		}
		fields = append(fields, domain.Field{Key: k.Value, Column: v.Value})
	}
	return domain.NewMapping(fields...), nil
}
