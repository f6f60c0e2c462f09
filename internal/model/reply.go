package model

// HistoryEntry is one curated transcript line, oldest first.
type HistoryEntry struct {
	IsFromUser bool
	Message    string
}

// ReplySource says which strategy produced a ReplyOutcome.
type ReplySource string

const (
	ReplySourceEscalation ReplySource = "escalation"
	ReplySourceKeyword    ReplySource = "keyword"
	ReplySourceAI         ReplySource = "ai"
	ReplySourceNone       ReplySource = "none"
)

// ReplyOutcome is the decision engine's terminal output for one work item.
// Text is empty exactly when Source is ReplySourceNone.
type ReplyOutcome struct {
	Text   string
	Source ReplySource
}

func NoReply() ReplyOutcome {
	return ReplyOutcome{Source: ReplySourceNone}
}

func (o ReplyOutcome) HasReply() bool {
	return o.Source != ReplySourceNone && o.Text != ""
}
