package dto

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginationFromQuery(t *testing.T) {
	tests := []struct {
		query string
		want  Pagination
	}{
		{"", Pagination{Page: 1, PerPage: 20}},
		{"page=3&per_page=50", Pagination{Page: 3, PerPage: 50}},
		{"page=0&per_page=-5", Pagination{Page: 1, PerPage: 20}},
		{"page=abc&per_page=1000", Pagination{Page: 1, PerPage: 100}},
	}
	for _, tt := range tests {
		q, _ := url.ParseQuery(tt.query)
		assert.Equal(t, tt.want, PaginationFromQuery(q), tt.query)
	}
}

func TestNewPage(t *testing.T) {
	p := Pagination{Page: 2, PerPage: 10}
	assert.Equal(t, 1, p.Offset()/10)

	page := NewPage([]string{"a"}, 21, p)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 2, page.Page)

	empty := NewPage[string](nil, 0, p)
	assert.NotNil(t, empty.Data)
	assert.Equal(t, 0, empty.TotalPages)
}
