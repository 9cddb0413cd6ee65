package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Declaration is the statically declared description of an entity type.
type Declaration struct {
	Entity string      `yaml:"entity"`
	Fields []FieldDecl `yaml:"fields"`
}

// FieldDecl is one declared field and its metadata block.
type FieldDecl struct {
	Name string `yaml:"name"`
	Meta string `yaml:"meta"`
}

// Options controls directive parsing.
type Options struct {
	// Prefix introduces a directive. Defaults to DefaultPrefix.
	Prefix string

	// Strict rejects unknown directives and unknown arguments.
	Strict bool
}

// Parse builds the schema of an entity from its declaration.
func Parse(decl Declaration, opts Options) (*Entity, error) {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if strings.TrimSpace(decl.Entity) == "" {
		return nil, &SchemaParseError{Reason: "entity name is required"}
	}

	p := &parser{
		opts: opts,
		ent: &Entity{
			name:  decl.Entity,
			rules: make(map[FieldKey]ValidatorRule),
			index: make(map[string][2]int),
		},
		tables: make(map[string]int),
		groups: make(map[string]int),
	}

	for _, f := range decl.Fields {
		if err := p.field(f); err != nil {
			return nil, err
		}
	}
	return p.ent, nil
}

type parser struct {
	opts   Options
	ent    *Entity
	tables map[string]int
	groups map[string]int
}

func (p *parser) fail(field string, d *Directive, format string, args ...any) error {
	e := &SchemaParseError{Entity: p.ent.name, Field: field, Reason: fmt.Sprintf(format, args...)}
	if d != nil {
		e.Directive = d.Name
		e.Offset = d.Offset
	}
	return e
}

func (p *parser) field(decl FieldDecl) error {
	name := strings.TrimSpace(decl.Name)
	if name == "" {
		return p.fail("", nil, "field name is required")
	}
	if p.ent.Has(name) {
		return p.fail(name, nil, "duplicate field")
	}

	directives, err := ScanDirectives(decl.Meta, p.opts.Prefix)
	if err != nil {
		if spe, ok := err.(*SchemaParseError); ok {
			spe.Entity = p.ent.name
			spe.Field = name
		}
		return err
	}

	fd := FieldDescriptor{Name: name, StorageAlias: name, Type: FieldTypeString}
	var rule ValidatorRule
	var groups []string

	for i := range directives {
		d := &directives[i]
		switch d.Kind {
		case DirectiveTable:
			table, ok := d.Positional()
			if !ok {
				table, ok = d.Arg("name")
			}
			if !ok || table == "" {
				return p.fail(name, d, "table name is required")
			}
			if fd.Table != "" && fd.Table != table {
				return p.fail(name, d, "field already belongs to table %q", fd.Table)
			}
			fd.Table = table

		case DirectiveColumn:
			if err := p.column(&fd, d); err != nil {
				return err
			}

		case DirectiveValidate:
			if err := p.allowArgs(name, d, "function", "regex"); err != nil {
				return err
			}
			fn, _ := d.Arg("function")
			re, _ := d.Arg("regex")
			if fn == "" && re == "" {
				return p.fail(name, d, "validate needs a function or a regex")
			}
			r, err := newRule(fn, re)
			if err != nil {
				return p.fail(name, d, "%v", err)
			}
			if rule, err = rule.merge(r); err != nil {
				return p.fail(name, d, "%v", err)
			}

		case DirectiveGroup:
			group, ok := d.Positional()
			if !ok {
				group, ok = d.Arg("name")
			}
			if !ok || group == "" {
				return p.fail(name, d, "group name is required")
			}
			if !containsString(groups, group) {
				groups = append(groups, group)
			}

		case DirectiveContextual:
			fd.Contextual = true

		default:
			if p.opts.Strict {
				return p.fail(name, d, "unknown directive")
			}
		}
	}

	if fd.Table == "" {
		fd.Table = p.ent.name
	}
	p.add(fd)
	if !rule.IsZero() {
		p.ent.rules[fd.Key()] = rule
	}
	for _, g := range groups {
		p.join(g, fd.Key())
	}
	return nil
}

func (p *parser) column(fd *FieldDescriptor, d *Directive) error {
	if err := p.allowArgs(fd.Name, d, "name", "real", "type", "length", "required", "context"); err != nil {
		return err
	}
	col, ok := d.Arg("name")
	if !ok {
		col, ok = d.Positional()
	}
	if ok && col != fd.Name {
		return p.fail(fd.Name, d, "column name %q does not match field name", col)
	}
	if v, ok := d.Arg("real"); ok && v != "" {
		fd.StorageAlias = v
	}
	if v, ok := d.Arg("type"); ok {
		t, err := ParseFieldType(v)
		if err != nil {
			return p.fail(fd.Name, d, "%v", err)
		}
		fd.Type = t
	}
	if v, ok := d.Arg("length"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return p.fail(fd.Name, d, "length must be a positive integer, got %q", v)
		}
		fd.Length = n
	}
	if v, ok := d.Arg("required"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return p.fail(fd.Name, d, "required must be a boolean, got %q", v)
		}
		fd.Required = b
	}
	if v, ok := d.Arg("context"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return p.fail(fd.Name, d, "context must be a boolean, got %q", v)
		}
		fd.Contextual = fd.Contextual || b
	}
	return nil
}

// allowArgs rejects unknown argument keys in strict mode.
func (p *parser) allowArgs(field string, d *Directive, keys ...string) error {
	if !p.opts.Strict {
		return nil
	}
	for _, a := range d.Args {
		if a.Key == "" {
			continue
		}
		if !containsString(keys, strings.ToLower(a.Key)) {
			return p.fail(field, d, "unknown argument %q", a.Key)
		}
	}
	return nil
}

func (p *parser) add(fd FieldDescriptor) {
	ti, ok := p.tables[fd.Table]
	if !ok {
		ti = len(p.ent.tables)
		p.tables[fd.Table] = ti
		p.ent.tables = append(p.ent.tables, Table{Name: fd.Table})
	}
	t := &p.ent.tables[ti]
	p.ent.index[fd.Name] = [2]int{ti, len(t.Fields)}
	t.Fields = append(t.Fields, fd)
}

func (p *parser) join(group string, key FieldKey) {
	gi, ok := p.groups[group]
	if !ok {
		gi = len(p.ent.groups)
		p.groups[group] = gi
		p.ent.groups = append(p.ent.groups, GroupConstraint{Name: group})
	}
	p.ent.groups[gi].Members = append(p.ent.groups[gi].Members, key)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ParseDeclaration decodes a declaration from YAML bytes.
func ParseDeclaration(data []byte) (Declaration, error) {
	var decl Declaration
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return Declaration{}, fmt.Errorf("parse yaml: %w", err)
	}
	if decl.Entity == "" {
		return Declaration{}, fmt.Errorf("declaration has no entity name")
	}
	return decl, nil
}

// ParseDeclarationFile decodes a declaration from a YAML file.
func ParseDeclarationFile(path string) (Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Declaration{}, fmt.Errorf("read file %s: %w", path, err)
	}
	decl, err := ParseDeclaration(data)
	if err != nil {
		return Declaration{}, fmt.Errorf("%s: %w", path, err)
	}
	return decl, nil
}

// ParseDeclarationDir decodes all declarations in a directory, including subdirectories.
func ParseDeclarationDir(dir string) ([]Declaration, error) {
	var decls []Declaration

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			sub, err := ParseDeclarationDir(path)
			if err != nil {
				return nil, err
			}
			decls = append(decls, sub...)
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		decl, err := ParseDeclarationFile(path)
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}

	return decls, nil
}
