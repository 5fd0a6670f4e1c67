package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPaginationInfo(t *testing.T) {
	tests := []struct {
		name        string
		skip, limit int
		total       int
		wantPage    int
		wantPages   int
		wantNext    bool
		wantPrev    bool
	}{
		{"empty result", 0, 20, 0, 1, 1, false, false},
		{"single page", 0, 20, 5, 1, 1, false, false},
		{"exact page boundary", 0, 20, 20, 1, 1, false, false},
		{"first of many", 0, 20, 45, 1, 3, true, false},
		{"middle page", 20, 20, 45, 2, 3, true, true},
		{"last page", 40, 20, 45, 3, 3, false, true},
		{"small limit", 10, 5, 12, 3, 3, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPaginationInfo(tt.skip, tt.limit, tt.total)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.limit, p.Size)
			assert.Equal(t, tt.total, p.Total)
			assert.Equal(t, tt.wantPages, p.Pages)
			assert.Equal(t, tt.wantNext, p.HasNext)
			assert.Equal(t, tt.wantPrev, p.HasPrev)
		})
	}
}
