// Package contract parses and enforces small per-field constraint
// expressions such as "int; min: 5; max: 128" or "enum; values: member, admin".
//
// A contract is a tree. Leaves carry a type name and literal constraints;
// assoc and array nodes carry a keys map of field name to child contract.
// Leaves serialize to the flat expression grammar, composite nodes to a
// JSON object:
//
//	{"type":"assoc","keys":{"id":"int; min: 1","tags?":{"type":"array","keys":{...}}}}
//
// A trailing "?" on a field name marks the field optional.
package contract

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Base type names.
const (
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeString = "string"
	TypeBool   = "bool"
	TypeEmail  = "email"
	TypeEnum   = "enum"
	TypeColor  = "color"
	TypeBinary = "binary"
	TypeAssoc  = "assoc"
	TypeArray  = "array"
)

// Constraint keys.
const (
	KeyMin     = "min"
	KeyMax     = "max"
	KeyMinLen  = "minLen"
	KeyMaxLen  = "maxLen"
	KeyValues  = "values"
	KeyMime    = "mime"
	KeyDefault = "default"
)

var typeAliases = map[string]string{
	"integer": TypeInt,
	"number":  TypeFloat,
	"boolean": TypeBool,
	"object":  TypeAssoc,
	"list":    TypeArray,
	"file":    TypeBinary,
}

var knownTypes = map[string]bool{
	TypeInt: true, TypeFloat: true, TypeString: true, TypeBool: true, TypeEmail: true,
	TypeEnum: true, TypeColor: true, TypeBinary: true, TypeAssoc: true, TypeArray: true,
}

var knownKeys = map[string]bool{
	KeyMin: true, KeyMax: true, KeyMinLen: true, KeyMaxLen: true,
	KeyValues: true, KeyMime: true, KeyDefault: true,
}

// Contract describes the expected type, shape and constraints of a value.
// Contracts are immutable once built and safe to share across goroutines.
type Contract struct {
	Type        string
	Constraints map[string]string
	// Optional is set when the contract was declared under a "name?" key.
	Optional bool
	// Keys is non-nil only for structural contracts declared with keys.
	Keys map[string]*Contract
}

// Leaf returns a leaf contract with the given constraints.
func Leaf(typeName string, constraints map[string]string) *Contract {
	c := &Contract{Type: typeName, Constraints: map[string]string{}}
	for k, v := range constraints {
		c.Constraints[k] = v
	}
	return c
}

// Assoc returns an assoc contract over the given keys. Key names may carry
// the "?" optional suffix.
func Assoc(keys map[string]*Contract) *Contract {
	c := &Contract{Type: TypeAssoc, Constraints: map[string]string{}, Keys: map[string]*Contract{}}
	for name, sub := range keys {
		name, opt := splitOptional(name)
		cp := *sub
		cp.Optional = cp.Optional || opt
		c.Keys[name] = &cp
	}
	return c
}

// Constraint returns the literal for key and whether it is set.
func (c *Contract) Constraint(key string) (string, bool) {
	v, ok := c.Constraints[key]
	return v, ok
}

// IsStructural reports whether the contract validates maps or lists.
func (c *Contract) IsStructural() bool {
	return c.Type == TypeAssoc || c.Type == TypeArray
}

// Parse parses an expression. Expressions starting with "{" are read as
// the JSON form of a structural contract.
func Parse(expr string) (*Contract, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, fmt.Errorf("empty contract expression")
	}
	if strings.HasPrefix(trimmed, "{") {
		var raw map[string]any
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return nil, fmt.Errorf("parse contract json: %w", err)
		}
		return fromNode(raw)
	}
	return parseFlat(trimmed)
}

// MustParse is Parse that panics on error. For package-level contracts.
func MustParse(expr string) *Contract {
	c, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return c
}

// FromFields builds an assoc contract from a field name to expression map.
func FromFields(fields map[string]string) (*Contract, error) {
	c := &Contract{Type: TypeAssoc, Constraints: map[string]string{}, Keys: make(map[string]*Contract, len(fields))}
	for name, expr := range fields {
		key, opt := splitOptional(name)
		if key == "" {
			return nil, fmt.Errorf("empty field name in contract")
		}
		sub, err := Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		sub.Optional = opt
		c.Keys[key] = sub
	}
	return c, nil
}

// FromValue builds a contract from already-structured data: an expression
// string, a JSON-form node with a "type" entry, or a plain field map.
func FromValue(v any) (*Contract, error) {
	switch t := v.(type) {
	case *Contract:
		return t, nil
	case string:
		return Parse(t)
	case map[string]string:
		return FromFields(t)
	case map[string]any:
		if _, ok := t["type"]; ok {
			return fromNode(t)
		}
		return fromNode(map[string]any{"type": TypeAssoc, "keys": t})
	default:
		return nil, fmt.Errorf("unsupported contract value %T", v)
	}
}

func parseFlat(expr string) (*Contract, error) {
	parts := strings.Split(expr, ";")
	typeName := normalizeType(parts[0])
	if !knownTypes[typeName] {
		return nil, fmt.Errorf("unknown contract type %q", strings.TrimSpace(parts[0]))
	}

	c := &Contract{Type: typeName, Constraints: map[string]string{}}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("constraint %q: expected key: value", part)
		}
		c.Constraints[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

func fromNode(node map[string]any) (*Contract, error) {
	rawType, _ := node["type"].(string)
	typeName := normalizeType(rawType)
	if !knownTypes[typeName] {
		return nil, fmt.Errorf("unknown contract type %q", rawType)
	}

	c := &Contract{Type: typeName, Constraints: map[string]string{}}

	if raw, ok := node["constraints"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("constraints must be an object, got %T", raw)
		}
		for k, v := range m {
			c.Constraints[k] = literal(v)
		}
	}

	if raw, ok := node["keys"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("keys must be an object, got %T", raw)
		}
		c.Keys = make(map[string]*Contract, len(m))
		for name, child := range m {
			key, opt := splitOptional(name)
			var (
				sub *Contract
				err error
			)
			switch ch := child.(type) {
			case string:
				sub, err = Parse(ch)
			case map[string]any:
				sub, err = FromValue(ch)
			default:
				err = fmt.Errorf("unsupported contract node %T", child)
			}
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", key, err)
			}
			sub.Optional = opt
			c.Keys[key] = sub
		}
	}

	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

// check validates constraint keys and literals at parse time so that
// Validate never meets a malformed literal.
func (c *Contract) check() error {
	for key, value := range c.Constraints {
		if !knownKeys[key] {
			return fmt.Errorf("%s: unknown constraint %q", c.Type, key)
		}
		// Literals must survive the flat grammar unchanged.
		if strings.Contains(value, ";") || strings.TrimSpace(value) != value {
			return fmt.Errorf("%s: constraint %s: %q cannot be written as a literal", c.Type, key, value)
		}
		switch key {
		case KeyMin, KeyMax:
			if f, err := strconv.ParseFloat(value, 64); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return fmt.Errorf("%s: constraint %s: %q is not a number", c.Type, key, value)
			}
		case KeyMinLen, KeyMaxLen:
			if n, err := strconv.Atoi(value); err != nil || n < 0 {
				return fmt.Errorf("%s: constraint %s: %q is not a length", c.Type, key, value)
			}
		case KeyValues:
			if c.Type != TypeEnum {
				return fmt.Errorf("%s: constraint values only applies to enum", c.Type)
			}
		case KeyMime:
			if c.Type != TypeBinary {
				return fmt.Errorf("%s: constraint mime only applies to binary", c.Type)
			}
		}
	}
	if c.Type == TypeEnum && len(splitList(c.Constraints[KeyValues])) == 0 {
		return fmt.Errorf("enum requires a values constraint")
	}
	if c.Keys != nil && !c.IsStructural() {
		return fmt.Errorf("%s: keys only apply to assoc and array", c.Type)
	}
	return nil
}

// String serializes the contract so that Parse(c.String()) is equal to c.
// Optionality is carried by the parent's key names.
func (c *Contract) String() string {
	if c.Keys == nil {
		return c.flat()
	}
	b, err := json.Marshal(c.node())
	if err != nil {
		// Only strings and maps of strings are marshalled.
		panic(err)
	}
	return string(b)
}

func (c *Contract) flat() string {
	var sb strings.Builder
	sb.WriteString(c.Type)
	for _, k := range sortedKeys(c.Constraints) {
		sb.WriteString("; ")
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(c.Constraints[k])
	}
	return sb.String()
}

func (c *Contract) node() map[string]any {
	node := map[string]any{"type": c.Type}
	if len(c.Constraints) > 0 {
		node["constraints"] = c.Constraints
	}
	keys := make(map[string]any, len(c.Keys))
	for name, sub := range c.Keys {
		if sub.Optional {
			name += "?"
		}
		if sub.Keys == nil {
			keys[name] = sub.flat()
		} else {
			keys[name] = sub.node()
		}
	}
	node["keys"] = keys
	return node
}

// Equal reports whether two contracts describe the same rules.
func Equal(a, b *Contract) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type != b.Type || a.Optional != b.Optional || len(a.Constraints) != len(b.Constraints) {
		return false
	}
	for k, v := range a.Constraints {
		if bv, ok := b.Constraints[k]; !ok || bv != v {
			return false
		}
	}
	if (a.Keys == nil) != (b.Keys == nil) || len(a.Keys) != len(b.Keys) {
		return false
	}
	for name, sub := range a.Keys {
		if !Equal(sub, b.Keys[name]) {
			return false
		}
	}
	return true
}

func normalizeType(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := typeAliases[name]; ok {
		return alias
	}
	return name
}

func splitOptional(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if strings.HasSuffix(name, "?") {
		return strings.TrimSpace(strings.TrimSuffix(name, "?")), true
	}
	return name, false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func literal(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, literal(e))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
