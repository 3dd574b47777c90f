package explorer

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// Classifier decides whether a node belongs to test code by evaluating
// JSONPath markers against its metadata.
type Classifier struct {
	exprs []jp.Expr
}

func NewClassifier(markers []string) (*Classifier, error) {
	c := &Classifier{}
	for _, m := range markers {
		x, err := jp.ParseString(m)
		if err != nil {
			return nil, fmt.Errorf("parse test marker %q: %w", m, err)
		}
		c.exprs = append(c.exprs, x)
	}
	return c, nil
}

// IsTest reports whether any marker selects true, "true", or a string
// mentioning test (e.g. a "test" or "testRuntime" scope).
func (c *Classifier) IsTest(meta map[string]any) bool {
	if c == nil || len(meta) == 0 {
		return false
	}
	for _, x := range c.exprs {
		for _, v := range x.Get(meta) {
			switch v := v.(type) {
			case bool:
				if v {
					return true
				}
			case string:
				if v == "true" || strings.Contains(strings.ToLower(v), "test") {
					return true
				}
			}
		}
	}
	return false
}
