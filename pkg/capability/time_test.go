package capability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTime_MonotonicMSIsNonDecreasing(t *testing.T) {
	tc := NewTime()
	first := tc.MonotonicMS()
	time.Sleep(5 * time.Millisecond)
	second := tc.MonotonicMS()
	assert.GreaterOrEqual(t, second, first)
}

func TestTime_NowMSRoughlyMatchesNow(t *testing.T) {
	tc := NewTime()
	assert.InDelta(t, tc.Now()*1000, tc.NowMS(), 2000)
}

func TestTime_DateAndDateTimeFormat(t *testing.T) {
	tc := NewTime()
	_, err := time.Parse("2006-01-02", tc.Date())
	assert.NoError(t, err)
	_, err = time.Parse("2006-01-02T15:04:05Z", tc.DateTime())
	assert.NoError(t, err)
}
