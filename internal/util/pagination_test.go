package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		page, size            int
		wantOffset, wantLimit int
	}{
		{page: 1, size: 10, wantOffset: 0, wantLimit: 10},
		{page: 3, size: 10, wantOffset: 20, wantLimit: 10},
		{page: 0, size: 0, wantOffset: 0, wantLimit: DefaultPageSize},
		{page: -2, size: 5, wantOffset: 0, wantLimit: 5},
		{page: 2, size: 1000, wantOffset: MaxPageSize, wantLimit: MaxPageSize},
	}
	for _, tt := range tests {
		offset, limit := Calculate(tt.page, tt.size)
		assert.Equal(t, tt.wantOffset, offset)
		assert.Equal(t, tt.wantLimit, limit)
	}
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 7, ParseIntDefault("7", 1))
	assert.Equal(t, 1, ParseIntDefault("", 1))
	assert.Equal(t, 1, ParseIntDefault("x", 1))

	id, ok := ParseID("42")
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)

	for _, bad := range []string{"", "0", "-1", "abc"} {
		_, ok := ParseID(bad)
		assert.False(t, ok, bad)
	}
}
