package main

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"riskform/internal/codebook"
)

func positionalNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = strconv.Itoa(i)
	}
	return names
}

func TestCheckModelColumns(t *testing.T) {
	cb := codebook.Default()

	reordered := append([]string(nil), codebook.FeatureOrder...)
	reordered[0], reordered[1] = reordered[1], reordered[0]

	renamed := append([]string(nil), codebook.FeatureOrder...)
	renamed[3] = "sex"

	tests := []struct {
		name    string
		columns []string
		wantErr bool
	}{
		{"no names reported", nil, false},
		{"positional names with matching count", positionalNames(cb.Len()), false},
		{"positional names with too few columns", positionalNames(cb.Len() - 1), true},
		{"positional names with too many columns", positionalNames(cb.Len() + 1), true},
		{"exact feature order", codebook.FeatureOrder, false},
		{"reordered names", reordered, true},
		{"unknown name", renamed, true},
		{"missing trailing name", codebook.FeatureOrder[:len(codebook.FeatureOrder)-1], true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkModelColumns(cb, tt.columns)
			if tt.wantErr {
				assert.ErrorIs(t, err, codebook.ErrConfigMismatch)
				return
			}
			assert.NoError(t, err)
		})
	}
}
