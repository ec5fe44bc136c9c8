package ingesttask

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPercentageMapping(t *testing.T) {
	require.Equal(t, 0, (&Task{Status: StatusPending}).Percentage())
	require.Equal(t, 40, (&Task{Status: StatusEmbedding}).Percentage())
	require.Equal(t, 100, (&Task{Status: StatusCompleted}).Percentage())
}

func TestForwardOrderIsMonotonicAcrossStages(t *testing.T) {
	order := []Status{StatusPending, StatusExtracting, StatusChunking, StatusEmbedding, StatusStoring, StatusCompleted}
	for i := 1; i < len(order); i++ {
		require.Greater(t, forwardOrder[order[i]], forwardOrder[order[i-1]])
	}
	require.Greater(t, forwardOrder[StatusFailed], forwardOrder[StatusCompleted])
}
