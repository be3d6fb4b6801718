package visit

// Tracker owns the status and priority of every question in the current
// batch and enforces that at most one question is asked at a time. All
// operations on out-of-range indices or answered questions are silent
// no-ops: the UI disables those affordances, but the tracker stays
// defensively idempotent.
//
// Tracker is not goroutine-safe; the owning session serializes access.
type Tracker struct {
	questions []SuggestedQuestion
	active    int
}

// NewTracker returns a tracker with an empty batch.
func NewTracker() *Tracker {
	return &Tracker{active: -1}
}

// Initialize replaces the entire batch. Every question starts pending
// and any active selection is cleared; batches never merge.
func (t *Tracker) Initialize(batch []ParsedQuestion) {
	questions := make([]SuggestedQuestion, 0, len(batch))
	for _, q := range batch {
		questions = append(questions, SuggestedQuestion{
			Text:     q.Text,
			Priority: q.Priority,
			Status:   StatusPending,
		})
	}
	t.questions = questions
	t.active = -1
}

// Select marks the question at index as the active asked question.
// Selecting the current active index is a no-op (idempotent re-click).
// Selecting while another question is active deselects it first. A
// question found asked without being the active one is stale state and
// is toggled back to pending.
func (t *Tracker) Select(index int) {
	if index < 0 || index >= len(t.questions) {
		return
	}
	if index == t.active {
		return
	}

	q := &t.questions[index]
	if q.Status == StatusAnswered {
		return
	}
	if q.Status == StatusAsked {
		q.Status = StatusPending
		t.active = -1
		return
	}

	if t.active >= 0 {
		t.questions[t.active].Status = StatusPending
	}
	q.Status = StatusAsked
	t.active = index
}

// CancelActive reverts the active question to pending, if there is one.
func (t *Tracker) CancelActive() {
	if t.active < 0 {
		return
	}
	t.questions[t.active].Status = StatusPending
	t.active = -1
}

// AnswerActive marks the active question answered (terminal) and clears
// the selection. It returns the question/answer pair for transcript and
// backend submission, and false when no question is active.
func (t *Tracker) AnswerActive(answer string) (QA, bool) {
	if t.active < 0 {
		return QA{}, false
	}
	q := &t.questions[t.active]
	q.Status = StatusAnswered
	t.active = -1
	return QA{Question: q.Text, Answer: answer}, true
}

// ActiveIndex returns the index of the asked question, or -1.
func (t *Tracker) ActiveIndex() int {
	return t.active
}

// IsAnswering reports whether a question is currently awaiting a typed
// answer.
func (t *Tracker) IsAnswering() bool {
	return t.active >= 0
}

// Questions returns a copy of the current batch.
func (t *Tracker) Questions() []SuggestedQuestion {
	out := make([]SuggestedQuestion, len(t.questions))
	copy(out, t.questions)
	return out
}

// Len returns the batch size.
func (t *Tracker) Len() int {
	return len(t.questions)
}
