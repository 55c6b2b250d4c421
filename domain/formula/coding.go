package formula

import "fmt"

// Scheme selects how a factor predictor expands into design columns
type Scheme string

const (
	// Treatment drops the first level as reference; each remaining level
	// gets an indicator column.
	Treatment Scheme = "treatment"
	// Sum drops the last level; its rows carry -1 in every contrast column.
	Sum Scheme = "sum"
)

// Valid reports whether the scheme is a known coding
func (s Scheme) Valid() bool {
	return s == Treatment || s == Sum
}

// Contrasts maps factor columns to coding schemes. Columns without an entry
// use Treatment. Contrasts travel inside the fit configuration; there is no
// process-global coding state.
type Contrasts map[string]Scheme

// SchemeFor returns the scheme configured for a column, defaulting to Treatment
func (c Contrasts) SchemeFor(column string) Scheme {
	if c == nil {
		return Treatment
	}
	if s, ok := c[column]; ok {
		return s
	}
	return Treatment
}

// Validate rejects unknown schemes
func (c Contrasts) Validate() error {
	for column, s := range c {
		if !s.Valid() {
			return fmt.Errorf("unknown coding scheme %q for column %q", s, column)
		}
	}
	return nil
}

// Clone returns an independent copy
func (c Contrasts) Clone() Contrasts {
	if c == nil {
		return nil
	}
	out := make(Contrasts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
