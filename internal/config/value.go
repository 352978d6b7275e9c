package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Type tags the kind of value an option holds.
type Type int

const (
	TypeString Type = iota + 1
	TypeInteger
	TypeBoolean
	TypeList
)

// ListSeparator splits stored list values.
const ListSeparator = ":"

func (t Type) String() string {
	switch t {
	case TypeString:
		return "String"
	case TypeInteger:
		return "Integer"
	case TypeBoolean:
		return "Boolean"
	case TypeList:
		return "Array"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType maps a legacy type tag ("String", "int", "Boolean", "Array", ...)
// onto a Type. Only the first letter counts and case is ignored.
func ParseType(tag string) (Type, error) {
	if tag == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidType)
	}
	switch strings.ToUpper(tag[:1]) {
	case "S":
		return TypeString, nil
	case "I":
		return TypeInteger, nil
	case "B":
		return TypeBoolean, nil
	case "A":
		return TypeList, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidType, tag)
}

// Value is a typed configuration value. A null Value carries its type but no
// content; a null list reads as empty.
type Value struct {
	typ  Type
	null bool
	str  string
	num  int
	flag bool
	list []string
}

func StringValue(s string) Value { return Value{typ: TypeString, str: s} }
func IntValue(n int) Value { return Value{typ: TypeInteger, num: n} }
func BoolValue(b bool) Value { return Value{typ: TypeBoolean, flag: b} }
func ListValue(l []string) Value { return Value{typ: TypeList, list: slices.Clone(l)} }
func NullValue(t Type) Value { return Value{typ: t, null: true} }
func (v Value) Type() Type { return v.typ }
func (v Value) IsNull() bool { return v.null }
func (v Value) AsString() string { return v.str }
func (v Value) AsInt() int { return v.num }
func (v Value) AsBool() bool { return v.flag }
func (v Value) AsList() []string { return slices.Clone(v.list) }

// String renders the value the way it would be stored in the INI file.
func (v Value) String() string {
	if v.null {
		return ""
	}
	switch v.typ {
	case TypeInteger:
		return strconv.Itoa(v.num)
	case TypeBoolean:
		return strconv.FormatBool(v.flag)
	case TypeList:
		return strings.Join(v.list, ListSeparator)
	default:
		return v.str
	}
}

// boolWords is the vocabulary accepted for Boolean options.
var boolWords = map[string]bool{
	"1": true, "yes": true, "true": true, "on": true,
	"0": false, "no": false, "false": false, "off": false,
}

// coerce converts a stored string into a Value of type t.
func coerce(t Type, raw string) (Value, error) {
	switch t {
	case TypeString:
		return StringValue(raw), nil
	case TypeInteger:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, raw)
		}
		return IntValue(n), nil
	case TypeBoolean:
		b, ok := boolWords[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			return Value{}, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, raw)
		}
		return BoolValue(b), nil
	case TypeList:
		if strings.TrimSpace(raw) == "" {
			return ListValue(nil), nil
		}
		return ListValue(strings.Split(raw, ListSeparator)), nil
	}
	return Value{}, fmt.Errorf("%w: %v", ErrInvalidType, t)
}

// defaultValue converts a declared Go default into a Value of type t.
func defaultValue(t Type, def any) (Value, error) {
	switch d := def.(type) {
	case string:
		if t == TypeString {
			return StringValue(d), nil
		}
		if t == TypeList {
			return coerce(TypeList, d)
		}
	case []string:
		if t == TypeList {
			return ListValue(d), nil
		}
	case int:
		if t == TypeInteger {
			return IntValue(d), nil
		}
	case bool:
		if t == TypeBoolean {
			return BoolValue(d), nil
		}
	}
	return Value{}, fmt.Errorf("%w: %T for %v option", ErrInvalidDefault, def, t)
}
