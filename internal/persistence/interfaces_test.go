package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeRangeValidate(t *testing.T) {
	from := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, TimeRange{From: from, To: to}.Validate())
	assert.NoError(t, TimeRange{From: from, To: from}.Validate(), "single-day range is valid")
	require.Error(t, TimeRange{From: to, To: from}.Validate())
}

func TestPickRecordValidate(t *testing.T) {
	ok := PickRecord{Industry: "银行", Quarter: "2021Q2", Rank: 1, Name: "工商银行", Score: 1.2}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.Rank = 0
	assert.Error(t, bad.Validate())

	bad = ok
	bad.Quarter = ""
	assert.Error(t, bad.Validate())
}
