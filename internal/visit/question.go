// Package visit implements the guided-questioning flow for a doctor
// visit: parsing suggested questions out of chatbot responses, tracking
// their lifecycle, and assembling the consultation transcript.
package visit

// Priority is the displayed urgency of a suggested question.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// QuestionStatus is the lifecycle state of a suggested question within
// its batch.
type QuestionStatus string

const (
	StatusPending  QuestionStatus = "pending"
	StatusAsked    QuestionStatus = "asked"
	StatusAnswered QuestionStatus = "answered"
)

// ParsedQuestion is a question record extracted from a chatbot response,
// before it enters lifecycle tracking.
type ParsedQuestion struct {
	Text     string   `json:"question"`
	Priority Priority `json:"priority"`
}

// SuggestedQuestion is a question offered to the clinician, with its
// lifecycle state. An answered question is terminal for the batch.
type SuggestedQuestion struct {
	Text     string         `json:"text"`
	Priority Priority       `json:"priority"`
	Status   QuestionStatus `json:"status"`
}

// QA pairs a suggested question with the clinician's typed answer.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
