package main

import "golang.org/x/net/html"

// Row is a non-owning reference to one message's on-screen element. It is
// valid only while the host keeps the element attached; consumers must
// re-validate attachment before acting on Node.
type Row struct {
	Node     *html.Node
	Sender   string
	Subject  string
	Snippet  string
	DateText string
	Unread   bool
	Starred  bool
	ThreadID string
	Label    string
}

// ExtractedMessage holds the fields read from an opened message.
type ExtractedMessage struct {
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Date    string `json:"date"`
}

// TaskOutcome represents the terminal state of an extraction task.
type TaskOutcome string

const (
	OutcomePending   TaskOutcome = "pending"
	OutcomeSucceeded TaskOutcome = "succeeded"
	OutcomeFailed    TaskOutcome = "failed"
	OutcomeExhausted TaskOutcome = "exhausted"
)

// ExtractionTask tracks one row's extraction job from request to terminal
// outcome.
type ExtractionTask struct {
	ID       string
	Row      Row
	Attempts int
	Strategy string
	Result   *ExtractedMessage
	Outcome  TaskOutcome
	Err      error

	// WasUnread is captured before any interaction with the row; opening a
	// message marks it read on the host, so it cannot be inferred afterward.
	WasUnread bool
}

// ProgressEvent reports pipeline progress after every step.
type ProgressEvent struct {
	Label   string
	Index   int
	Total   int
	Percent int
	Done    int
	Failed  int
}
