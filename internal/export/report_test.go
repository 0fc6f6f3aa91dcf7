package export

import (
	"testing"
	"time"

	"sitesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestFailedMutationsReport(t *testing.T) {
	letters := []models.DeadLetter{
		{
			MutationID: "0001-aa",
			TargetURL:  "https://api.example.com/jobs/1/status",
			Method:     "PATCH",
			Reason:     "server rejected with status 409",
			Attempts:   1,
			FailedAt:   time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC),
		},
		{
			MutationID: "0002-bb",
			TargetURL:  "https://api.example.com/jobs/2/notes",
			Method:     "POST",
			Reason:     "retry budget exhausted",
			Attempts:   10,
			FailedAt:   time.Date(2026, 2, 11, 14, 0, 0, 0, time.UTC),
		},
	}

	path, err := FailedMutations(letters, t.TempDir())
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Failed mutations")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Mutation ID", rows[0][0])
	assert.Equal(t, "0001-aa", rows[1][0])
	assert.Equal(t, "retry budget exhausted", rows[2][3])
}

func TestFailedMutationsEmpty(t *testing.T) {
	path, err := FailedMutations(nil, t.TempDir())
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Failed mutations")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
