package driver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sqleval/sqleval/pkg/types"
)

// ErrNoCases is returned when a filter selects nothing.
var ErrNoCases = errors.New("no test cases selected")

// Filter narrows the corpus. Zero fields match everything.
type Filter struct {
	Difficulty types.Difficulty
	// Substring matches case ids containing it, case-insensitively.
	Substring string
	// TestID selects one case exactly.
	TestID string
}

// Apply returns the matching cases in corpus order.
func (f Filter) Apply(cases []types.TestCase) ([]types.TestCase, error) {
	sub := strings.ToLower(f.Substring)
	var out []types.TestCase
	for _, tc := range cases {
		if f.TestID != "" && tc.ID != f.TestID {
			continue
		}
		if f.Difficulty != "" && tc.Difficulty != f.Difficulty {
			continue
		}
		if sub != "" && !strings.Contains(strings.ToLower(tc.ID), sub) {
			continue
		}
		out = append(out, tc)
	}
	if len(out) == 0 {
		if f.TestID != "" {
			return nil, fmt.Errorf("%w: unknown test id %q", ErrNoCases, f.TestID)
		}
		return nil, ErrNoCases
	}
	return out, nil
}
