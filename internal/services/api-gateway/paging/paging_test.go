package paging

import (
	"math"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	cases := []struct {
		name        string
		page, limit int
		want        Request
	}{
		{"defaults", 0, 0, Request{Page: 1, Limit: DefaultLimit, Offset: 0}},
		{"third page", 3, 10, Request{Page: 3, Limit: 10, Offset: 20}},
		{"negative page", -4, 5, Request{Page: 1, Limit: 5, Offset: 0}},
		{"limit capped", 2, 1000, Request{Page: 2, Limit: MaxLimit, Offset: MaxLimit}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, New(tc.page, tc.limit))
		})
	}
}

func TestNew_HugePageDoesNotOverflow(t *testing.T) {
	for _, limit := range []int{1, 7, 10, MaxLimit} {
		r := New(math.MaxInt, limit)
		assert.GreaterOrEqual(t, r.Offset, 0, "limit %d", limit)
		assert.Equal(t, (r.Page-1)*r.Limit, r.Offset)
	}

	r := FromQuery(url.Values{"page": {"922337203685477582"}, "limit": {"10"}})
	assert.GreaterOrEqual(t, r.Offset, 0)

	// values beyond int range do not parse and fall back to page 1
	r = FromQuery(url.Values{"page": {strconv.FormatUint(math.MaxUint64, 10)}})
	assert.Equal(t, 1, r.Page)
}

func TestResult(t *testing.T) {
	assert.Equal(t, Pagination{Page: 3, Limit: 10, Total: 25, TotalPages: 3}, New(3, 10).Result(25))
	assert.Equal(t, 0, New(1, 10).Result(0).TotalPages)
}
