package config

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/ini.v1"
)

// FlatSeparator joins section and option in a flat name.
const FlatSeparator = "_"

// Option declares the type and optional default of one config option.
// A nil Default means the option has none.
type Option struct {
	Type    Type
	Default any
}

// Tagged returns an option typed by a legacy tag such as "Integer" or
// "Array" (see ParseType). Declare rejects the option with ErrInvalidType
// when the tag is unknown.
func Tagged(tag string, def any) Option {
	t, err := ParseType(tag)
	if err != nil {
		return Option{Default: def}
	}
	return Option{Type: t, Default: def}
}

type declared struct {
	typ        Type
	def        Value
	hasDefault bool
}

// Store resolves (section, option) keys against an INI document using a
// schema that collaborators declare incrementally.
type Store struct {
	file                *ini.File
	schema              map[string]map[string]declared
	materializeDefaults bool
	envPrefix           string
	lookupEnv           func(string) (string, bool)
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithMaterializeDefaults writes the declared default of a missing option
// back into the in-memory document when it is read through Get.
func WithMaterializeDefaults() StoreOption {
	return func(s *Store) { s.materializeDefaults = true }
}

// WithEnvPrefix lets PREFIX_SECTION_OPTION environment variables override
// stored values.
func WithEnvPrefix(prefix string) StoreOption {
	return func(s *Store) { s.envPrefix = prefix }
}

// WithEnvLookup replaces os.LookupEnv, mainly for tests.
func WithEnvLookup(fn func(string) (string, bool)) StoreOption {
	return func(s *Store) { s.lookupEnv = fn }
}

// Option names are matched ignoring case in Store.key rather than by the
// parser, so materialized keys keep their declared spelling.
var loadOptions = ini.LoadOptions{
	Loose:               true,
	IgnoreInlineComment: true,
}

// Load reads the INI file at path. A missing file yields an empty store.
func Load(path string, opts ...StoreOption) (*Store, error) {
	f, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return newStore(f, opts), nil
}

// LoadBytes parses INI content held in memory.
func LoadBytes(data []byte, opts ...StoreOption) (*Store, error) {
	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return newStore(f, opts), nil
}

func newStore(f *ini.File, opts []StoreOption) *Store {
	s := &Store{
		file:      f,
		schema:    make(map[string]map[string]declared),
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Declare merges options into the schema of section. Repeating a declaration
// is harmless; the last declaration of an option wins.
func (s *Store) Declare(section string, options map[string]Option) error {
	merged := make(map[string]declared, len(options))
	for name, opt := range options {
		if opt.Type < TypeString || opt.Type > TypeList {
			return fmt.Errorf("%w: %s.%s has %v", ErrInvalidType, section, name, opt.Type)
		}
		d := declared{typ: opt.Type}
		if opt.Default != nil {
			v, err := defaultValue(opt.Type, opt.Default)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", section, name, err)
			}
			d.def, d.hasDefault = v, true
		}
		merged[name] = d
	}

	sub, ok := s.schema[section]
	if !ok {
		sub = make(map[string]declared, len(merged))
		s.schema[section] = sub
	}
	maps.Copy(sub, merged)
	return nil
}

// Sections lists the declared sections in sorted order.
func (s *Store) Sections() []string {
	return slices.Sorted(maps.Keys(s.schema))
}

// Options lists the declared options of section in sorted order.
func (s *Store) Options(section string) []string {
	return slices.Sorted(maps.Keys(s.schema[section]))
}

// Get resolves section.option to its stored value, or to the declared
// default when nothing is stored.
func (s *Store) Get(section, option string) (Value, error) {
	return s.get(section, option, s.materializeDefaults)
}

// GetByFlatName resolves a single "section_option" name. See SplitFlatName.
// Defaults are never materialized on this path.
func (s *Store) GetByFlatName(name string) (Value, error) {
	section, option, err := s.SplitFlatName(name)
	if err != nil {
		return Value{}, err
	}
	return s.get(section, option, false)
}

// SplitFlatName splits name into a declared section and an option. The split
// after the first separator is tried first; when that section is not declared
// and the name has a second separator, the first two tokens form the section.
// Exact section matches take precedence over case-insensitive ones.
func (s *Store) SplitFlatName(name string) (section, option string, err error) {
	tokens := strings.Split(name, FlatSeparator)
	if len(tokens) < 2 {
		return "", "", fmt.Errorf("%w: %q has no section", ErrUnknownKey, name)
	}

	type candidate struct{ section, option string }
	candidates := []candidate{{tokens[0], strings.Join(tokens[1:], FlatSeparator)}}
	if len(tokens) > 2 {
		candidates = append(candidates, candidate{
			tokens[0] + FlatSeparator + tokens[1],
			strings.Join(tokens[2:], FlatSeparator),
		})
	}

	for _, c := range candidates {
		if _, ok := s.schema[c.section]; ok {
			return c.section, c.option, nil
		}
	}
	for _, c := range candidates {
		if sec, ok := s.foldSection(c.section); ok {
			return sec, c.option, nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnknownKey, name)
}

// foldSection finds a declared section equal to name under case folding.
// Sections are tried in sorted order so the result is stable.
func (s *Store) foldSection(name string) (string, bool) {
	for _, sec := range s.Sections() {
		if strings.EqualFold(sec, name) {
			return sec, true
		}
	}
	return "", false
}

func (s *Store) get(section, option string, materialize bool) (Value, error) {
	sub, ok := s.schema[section]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownSection, section)
	}
	d, ok := sub[option]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s.%s", ErrUnknownOption, section, option)
	}

	if raw, ok := s.raw(section, option); ok {
		v, err := coerce(d.typ, raw)
		if err != nil {
			return Value{}, fmt.Errorf("%s.%s: %w", section, option, err)
		}
		return v, nil
	}

	if !d.hasDefault {
		if d.typ == TypeList {
			return ListValue(nil), nil
		}
		return NullValue(d.typ), nil
	}
	if materialize {
		if _, err := s.file.Section(section).NewKey(option, d.def.String()); err != nil {
			return Value{}, fmt.Errorf("%s.%s: %w", section, option, err)
		}
	}
	return d.def, nil
}

// raw returns the stored text of section.option, environment first.
func (s *Store) raw(section, option string) (string, bool) {
	if s.envPrefix != "" {
		name := strings.ToUpper(strings.Join([]string{s.envPrefix, section, option}, FlatSeparator))
		if v, ok := s.lookupEnv(name); ok {
			return v, true
		}
	}
	key := s.key(section, option)
	if key == nil {
		return "", false
	}
	return key.Value(), true
}

// key finds option in section of the document, ignoring case. The first
// match wins.
func (s *Store) key(section, option string) *ini.Key {
	sec, err := s.file.GetSection(section)
	if err != nil {
		return nil
	}
	for _, k := range sec.Keys() {
		if strings.EqualFold(k.Name(), option) {
			return k
		}
	}
	return nil
}

// WriteTo writes the INI document, including materialized defaults.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	return s.file.WriteTo(w)
}
