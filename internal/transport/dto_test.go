package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPage_Meta(t *testing.T) {
	t.Parallel()

	p := NewPage([]int{1, 2}, 2, 2, 2, 5)
	assert.Equal(t, Meta{Page: 2, Size: 2, Total: 5, TotalPages: 3, HasPrev: true, HasNext: true}, p.Meta)

	empty := NewPage[int](nil, 1, 0, 20, 0)
	assert.NotNil(t, empty.Data)
	assert.Equal(t, int64(0), empty.Meta.TotalPages)
	assert.False(t, empty.Meta.HasNext)
}
