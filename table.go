package aurora

import (
	"github.com/pkg/errors"
)

// LocalServer is where the default table redirects the client: the old
// https origins become "http://127.0.0" and the "hytale.com" suffix that
// follows them in memory becomes ".1:59313".
const LocalServer = "http://127.0.0.1:59313"

// Substitution replaces every in-memory occurrence of Old with New. New may
// not serialize larger than Old.
type Substitution struct {
	Old StringRecord
	New StringRecord

	oldBytes []byte
	newBytes []byte
}

// NewSubstitution builds a substitution from two literals.
func NewSubstitution(from, to string) (sub Substitution, err error) {
	if sub.Old, err = NewStringRecord(from); err != nil {
		return
	}
	if sub.New, err = NewStringRecord(to); err != nil {
		return
	}
	err = sub.validate()
	return
}

func (s *Substitution) validate() error {
	if s.New.ByteSize() > s.Old.ByteSize() {
		return errors.Wrapf(ErrSubstitutionGrows, "%q (%d bytes) -> %q (%d bytes)",
			s.Old.String(), s.Old.ByteSize(), s.New.String(), s.New.ByteSize())
	}
	s.oldBytes = s.Old.Bytes()
	s.newBytes = s.New.Bytes()
	return nil
}

var defaultSubstitutions = [][2]string{
	{"https://account-data.", "http://127.0.0"},
	{"https://sessions.", "http://127.0.0"},
	{"https://telemetry.", "http://127.0.0"},
	{"https://tools.", "http://127.0.0"},
	{"hytale.com", ".1:59313"},
	{"authenticated", "insecure"},
}

// DefaultTable returns a fresh copy of the compiled-in substitution table.
func DefaultTable() []Substitution {
	table := make([]Substitution, 0, len(defaultSubstitutions))
	for _, pair := range defaultSubstitutions {
		sub, err := NewSubstitution(pair[0], pair[1])
		if err != nil {
			panic(err)
		}
		table = append(table, sub)
	}
	return table
}
