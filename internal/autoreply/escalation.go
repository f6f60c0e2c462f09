package autoreply

import (
	"context"
	"strings"

	"basegraph.app/autoreply/internal/model"
)

// EscalationAck is posted when the customer asks for a human agent.
const EscalationAck = "已为您转接人工客服，请耐心等待，客服人员会尽快回复您。"

type escalationStrategy struct{}

// NewEscalationStrategy matches transfer_keywords case-insensitively anywhere in
// the message. It always runs, whether or not operator notification is enabled.
func NewEscalationStrategy() Strategy {
	return escalationStrategy{}
}

func (escalationStrategy) Source() model.ReplySource {
	return model.ReplySourceEscalation
}

func (escalationStrategy) Decide(_ context.Context, req Request) (Decision, error) {
	if matchesAny(req.Message, req.Config.TransferKeywords()) {
		return Handled(EscalationAck), nil
	}
	return Pass(), nil
}

func matchesAny(message string, keywords []string) bool {
	lower := strings.ToLower(message)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
