package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clockwork/pkg/chat"
	"clockwork/pkg/session"
)

func TestTokenEstimatorCountsTranscripts(t *testing.T) {
	est, err := tokenEstimator()
	require.NoError(t, err)

	short := []chat.Message{chat.NewMessage("User", "train a model")}
	long := []chat.Message{
		chat.NewMessage("User", "train a model"),
		chat.NewMessage("engineer", "loaded the dataset, split it, and fit a gradient boosted baseline"),
	}

	assert.Zero(t, est(nil))
	assert.Greater(t, est(short), 0)
	assert.Greater(t, est(long), est(short))
}

func TestSessionUsesAccurateEstimator(t *testing.T) {
	est, err := tokenEstimator()
	require.NoError(t, err)

	var reported int
	obs := estimateObserver{reported: &reported}
	s := session.New("summary",
		[]chat.Role{chat.NewStubRole("a", "done STOP")},
		session.StopOnToken("STOP"), 3,
		session.WithObserver(obs),
		session.WithTokenEstimator(est),
	)

	seed := []chat.Message{chat.NewMessage("User", "summarize the results table")}
	_, err = s.Run(context.Background(), seed)
	require.NoError(t, err)
	assert.Equal(t, est(seed), reported)
}

type estimateObserver struct {
	session.NopObserver
	reported *int
}

func (o estimateObserver) SessionStarted(_ string, _ int, tokens int) {
	*o.reported = tokens
}
