package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnName(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "A"},
		{12, "L"},
		{26, "Z"},
		{27, "AA"},
		{52, "AZ"},
		{53, "BA"},
		{702, "ZZ"},
		{703, "AAA"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ColumnName(tt.n), "ColumnName(%d)", tt.n)
	}
}

func TestRowRange(t *testing.T) {
	assert.Equal(t, "'Tasks'!A3:K3", RowRange("Tasks", 3, 11))
	assert.Equal(t, "'DR_o''brien'!A1:A1", RowRange("DR_o'brien", 1, 0))
	assert.Equal(t, "'DR_ken'", TabRange("DR_ken"))
}
