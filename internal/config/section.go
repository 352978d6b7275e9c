package config

// SectionReader reads typed options of one section and keeps the first
// error, so a collaborator can pull all of its settings and check once.
type SectionReader struct {
	store   *Store
	section string
	err     error
}

// Section returns a reader bound to section.
func (s *Store) Section(section string) *SectionReader {
	return &SectionReader{store: s, section: section}
}

func (r *SectionReader) value(option string) Value {
	if r.err != nil {
		return Value{}
	}
	v, err := r.store.Get(r.section, option)
	if err != nil {
		r.err = err
	}
	return v
}

func (r *SectionReader) String(option string) string { return r.value(option).AsString() }
func (r *SectionReader) Int(option string) int { return r.value(option).AsInt() }
func (r *SectionReader) Bool(option string) bool { return r.value(option).AsBool() }
func (r *SectionReader) List(option string) []string { return r.value(option).AsList() }

// Err returns the first lookup error, if any.
func (r *SectionReader) Err() error {
	return r.err
}
