package visit

import "sync"

// Sender identifies which side of the consultation a transcript message
// came from.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// TranscriptMessage is a single chat turn in the consultation.
type TranscriptMessage struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// Transcript is the ordered message log shown in the consultation UI.
// Messages are appended in call order and never reordered. The one
// sanctioned in-place mutation is ReplaceLast, which swaps the transient
// "processing" placeholder for the real response.
//
// The mutex keeps the append-pair contract of AppendQA intact when the
// transcript is read and written from different goroutines.
type Transcript struct {
	mu       sync.Mutex
	messages []TranscriptMessage
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// AppendUser appends a clinician turn.
func (t *Transcript) AppendUser(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, TranscriptMessage{Sender: SenderUser, Text: text})
}

// AppendAI appends an assistant turn.
func (t *Transcript) AppendAI(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, TranscriptMessage{Sender: SenderAI, Text: text})
}

// AppendQA appends the synthetic question/answer pair for an answered
// suggested question. The two messages are appended under one lock
// acquisition so the pair is never observed split.
func (t *Transcript) AppendQA(question, answer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages,
		TranscriptMessage{Sender: SenderAI, Text: "Q: " + question},
		TranscriptMessage{Sender: SenderUser, Text: "A: " + answer},
	)
}

// ReplaceLast swaps the most recent message matching the predicate for
// msg. It reports whether a match was found.
func (t *Transcript) ReplaceLast(match func(TranscriptMessage) bool, msg TranscriptMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.messages) - 1; i >= 0; i-- {
		if match(t.messages[i]) {
			t.messages[i] = msg
			return true
		}
	}
	return false
}

// Messages returns a copy of the transcript in order.
func (t *Transcript) Messages() []TranscriptMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscriptMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}
