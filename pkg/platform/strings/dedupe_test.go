package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrimLower(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "case variants collapse to one",
			input:    []string{"Trout", "trout", "TROUT"},
			expected: []string{"trout"},
		},
		{
			name:     "trims before comparing",
			input:    []string{"  pike ", "pike", "perch  "},
			expected: []string{"pike", "perch"},
		},
		{
			name:     "drops entries that trim to nothing",
			input:    []string{"trout", "", "   ", "pike"},
			expected: []string{"trout", "pike"},
		},
		{
			name:     "first appearance wins the order",
			input:    []string{"Perch", "trout", "perch", "Trout"},
			expected: []string{"perch", "trout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrimLower(tt.input))
		})
	}
}
