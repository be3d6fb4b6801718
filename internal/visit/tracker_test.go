package visit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(texts ...string) *Tracker {
	batch := make([]ParsedQuestion, 0, len(texts))
	for _, text := range texts {
		batch = append(batch, ParsedQuestion{Text: text, Priority: PriorityMedium})
	}
	tr := NewTracker()
	tr.Initialize(batch)
	return tr
}

func TestTracker_InitializeResetsBatch(t *testing.T) {
	tr := newTestTracker("q1", "q2")
	tr.Select(0)
	require.Equal(t, 0, tr.ActiveIndex())

	tr.Initialize([]ParsedQuestion{{Text: "new", Priority: PriorityHigh}})

	assert.Equal(t, -1, tr.ActiveIndex())
	require.Equal(t, 1, tr.Len())
	q := tr.Questions()[0]
	assert.Equal(t, "new", q.Text)
	assert.Equal(t, StatusPending, q.Status)
}

func TestTracker_SingleActiveQuestion(t *testing.T) {
	tr := newTestTracker("q1", "q2", "q3")

	tr.Select(0)
	tr.Select(2)

	qs := tr.Questions()
	assert.Equal(t, StatusPending, qs[0].Status, "previous selection reverts to pending")
	assert.Equal(t, StatusAsked, qs[2].Status)
	assert.Equal(t, 2, tr.ActiveIndex())
	assert.True(t, tr.IsAnswering())
}

func TestTracker_SelectActiveIndexIsNoOp(t *testing.T) {
	tr := newTestTracker("q1", "q2")
	tr.Select(1)

	tr.Select(1)

	assert.Equal(t, 1, tr.ActiveIndex())
	assert.Equal(t, StatusAsked, tr.Questions()[1].Status)
}

func TestTracker_SelectOutOfRangeIsNoOp(t *testing.T) {
	tr := newTestTracker("q1")

	tr.Select(-1)
	tr.Select(5)

	assert.Equal(t, -1, tr.ActiveIndex())
	assert.Equal(t, StatusPending, tr.Questions()[0].Status)
}

func TestTracker_AnsweredIsTerminal(t *testing.T) {
	tr := newTestTracker("q1", "q2")
	tr.Select(0)

	qa, ok := tr.AnswerActive("two weeks")
	require.True(t, ok)
	assert.Equal(t, "q1", qa.Question)
	assert.Equal(t, "two weeks", qa.Answer)
	assert.Equal(t, -1, tr.ActiveIndex())
	assert.Equal(t, StatusAnswered, tr.Questions()[0].Status)

	// Re-selecting an answered question changes nothing.
	tr.Select(0)
	assert.Equal(t, -1, tr.ActiveIndex())
	assert.Equal(t, StatusAnswered, tr.Questions()[0].Status)
}

func TestTracker_CancelActive(t *testing.T) {
	tr := newTestTracker("q1")
	tr.Select(0)

	tr.CancelActive()

	assert.Equal(t, -1, tr.ActiveIndex())
	assert.False(t, tr.IsAnswering())
	assert.Equal(t, StatusPending, tr.Questions()[0].Status)

	// Cancel with nothing active is a no-op.
	tr.CancelActive()
	assert.Equal(t, -1, tr.ActiveIndex())
}

func TestTracker_AnswerWithoutActive(t *testing.T) {
	tr := newTestTracker("q1")

	_, ok := tr.AnswerActive("anything")

	assert.False(t, ok)
	assert.Equal(t, StatusPending, tr.Questions()[0].Status)
}

func TestTracker_StaleAskedTogglesBackToPending(t *testing.T) {
	tr := newTestTracker("q1", "q2")
	tr.Select(0)
	// Simulate stale state: asked question that lost its active mark.
	tr.active = -1

	tr.Select(0)

	assert.Equal(t, -1, tr.ActiveIndex())
	assert.Equal(t, StatusPending, tr.Questions()[0].Status)
}

func TestTracker_QuestionsReturnsCopy(t *testing.T) {
	tr := newTestTracker("q1")

	qs := tr.Questions()
	qs[0].Status = StatusAnswered

	assert.Equal(t, StatusPending, tr.Questions()[0].Status)
}
