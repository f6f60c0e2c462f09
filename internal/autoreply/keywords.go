package autoreply

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"basegraph.app/autoreply/internal/model"
)

// KeywordRule is a phrase and its canned reply.
type KeywordRule struct {
	Keyword string
	Reply   string
}

// ParseKeywordRules decodes a JSON object of keyword -> reply into rules
// sorted longest keyword first. Equal lengths keep the object's key order, so
// the result does not depend on Go map iteration.
func ParseKeywordRules(raw string) ([]KeywordRule, error) {
	dec := json.NewDecoder(strings.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading keyword rules: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("keyword rules must be a JSON object")
	}

	var rules []KeywordRule
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading keyword: %w", err)
		}
		keyword, _ := tok.(string)

		var reply string
		if err := dec.Decode(&reply); err != nil {
			return nil, fmt.Errorf("reading reply for %q: %w", keyword, err)
		}
		if keyword == "" {
			continue
		}
		// A repeated key keeps its first position and its last value.
		if i, ok := index[keyword]; ok {
			rules[i].Reply = reply
			continue
		}
		index[keyword] = len(rules)
		rules = append(rules, KeywordRule{Keyword: keyword, Reply: reply})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading keyword rules: %w", err)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return utf8.RuneCountInString(rules[i].Keyword) > utf8.RuneCountInString(rules[j].Keyword)
	})
	return rules, nil
}

// MatchKeyword returns the reply of the first rule whose keyword occurs in
// message. Rules with a blank reply never match.
func MatchKeyword(rules []KeywordRule, message string) (string, bool) {
	lower := strings.ToLower(message)
	for _, r := range rules {
		if strings.TrimSpace(r.Reply) == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(r.Keyword)) {
			return r.Reply, true
		}
	}
	return "", false
}

type keywordStrategy struct{}

func NewKeywordStrategy() Strategy {
	return keywordStrategy{}
}

func (keywordStrategy) Source() model.ReplySource {
	return model.ReplySourceKeyword
}

func (keywordStrategy) Decide(ctx context.Context, req Request) (Decision, error) {
	if !req.Config.KeywordReplyEnabled() {
		return Pass(), nil
	}

	rules, err := ParseKeywordRules(req.Config.KeywordRulesRaw())
	if err != nil {
		slog.WarnContext(ctx, "keyword rules are not a valid JSON object, treating as no rules", "error", err)
		return Pass(), nil
	}

	if reply, ok := MatchKeyword(rules, req.Message); ok {
		return Handled(reply), nil
	}
	return Pass(), nil
}
