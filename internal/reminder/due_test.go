package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsDue(t *testing.T) {
	t.Parallel()
	fire := at(9, 0)
	tolB, tolD := 5*time.Minute, 20*time.Minute
	cases := []struct {
		name string
		now  time.Time
		key  string
		want bool
	}{
		{"before early", at(8, 59), "before1", false},
		{"before exact", at(9, 0), "before1", true},
		{"before edge", at(9, 5), "before1", true},
		{"before late", at(9, 6), "before1", false},
		{"during edge", at(9, 20), "during1", true},
		{"during late", at(9, 21), "during1", false},
		{"overdue exact", at(9, 0), "overdue1", true},
		{"overdue much later", at(23, 0), "overdue1", true},
		{"overdue early", at(8, 0), "overdue1", false},
		{"unknown key", at(9, 0), "later1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDue(tc.now, fire, tc.key, tolB, tolD))
		})
	}
}
