package filter

import "fmt"

// Set is a compiled RuleSet. Rules combine by logical OR: an item is
// published once per rule that admits it.
type Set struct {
	filters []*Filter
	source  RuleSet
}

func Compile(rs RuleSet, defaults Streams) (*Set, error) {
	s := &Set{source: rs}
	for i, r := range rs.Rules {
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i)
		}
		f, err := r.Compile(defaults)
		if err != nil {
			return nil, err
		}
		s.filters = append(s.filters, f)
	}
	return s, nil
}

func (s *Set) Filters() []*Filter { return s.filters }

// RuleSet returns the configuration s was compiled from.
func (s *Set) RuleSet() RuleSet { return s.source }

// AdmitsSnapshot reports whether any rule publishes startup snapshot items.
func (s *Set) AdmitsSnapshot() bool {
	for _, f := range s.filters {
		if f.WantsSnapshot() {
			return true
		}
	}
	return false
}
