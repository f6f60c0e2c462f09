package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Option keys of the auto-reply option bag.
const (
	KeyEnableKeywordReply     = "enable_keyword_reply"
	KeyKeywordRules           = "keyword_rules"
	KeyTransferKeywords       = "transfer_keywords"
	KeyEnableTelegramNotify   = "enable_telegram_notify"
	KeyEnableAIReply          = "enable_ai_reply"
	KeyAIAPIKey               = "ai_api_key"
	KeyAIAPIBase              = "ai_api_base"
	KeyAIModel                = "ai_model"
	KeyAITemperature          = "ai_temperature"
	KeyAIMaxTokens            = "ai_max_tokens"
	KeyAITimeout              = "ai_timeout"
	KeyAISystemPrompt         = "ai_system_prompt"
	KeyEnableUserContext      = "enable_user_context"
	KeyMaxConversationHistory = "max_conversation_history"
	KeySpeedLimitWarning      = "speed_limit_warning"
	KeyAutoReplyDelay         = "auto_reply_delay"
	KeyAutoReplyPrefix        = "auto_reply_prefix"
	KeyAIReplyPrefix          = "ai_reply_prefix"
)

const (
	DefaultTransferKeywords = "人工客服,转人工,人工服务,真人客服"
	DefaultAIAPIBase        = "https://api.openai.com/v1"
	DefaultAIModel          = "gpt-3.5-turbo"
	DefaultAutoReplyPrefix  = "[Auto-Reply] "
	DefaultAIReplyPrefix    = "[AI Assistant] "
	DefaultSystemPrompt     = "You are a friendly and professional customer support assistant for a subscription network service. " +
		"Answer the customer's question accurately and concisely in the language they use. " +
		"If you are not sure about an answer, say so and suggest waiting for a human agent instead of guessing."
)

// ResolvedConfig is the immutable option bag captured when a work item is
// dispatched. Every work item carries its own copy, so a settings change never
// alters an in-flight retry. The zero value behaves as "all defaults".
type ResolvedConfig struct {
	values map[string]string
}

// New copies values into a ResolvedConfig.
func New(values map[string]string) ResolvedConfig {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return ResolvedConfig{values: copied}
}

// FromAny stringifies loosely typed values (YAML/JSON scalars, nested objects).
// Maps and slices are JSON-encoded so keyword_rules may be written inline.
func FromAny(values map[string]any) (ResolvedConfig, error) {
	out := make(map[string]string, len(values))
	for k, v := range values {
		switch tv := v.(type) {
		case nil:
			continue
		case string:
			out[k] = tv
		case map[string]any, []any:
			data, err := json.Marshal(tv)
			if err != nil {
				return ResolvedConfig{}, fmt.Errorf("encoding %s: %w", k, err)
			}
			out[k] = string(data)
		default:
			out[k] = fmt.Sprint(tv)
		}
	}
	return ResolvedConfig{values: out}, nil
}

// Values returns a copy of the raw option map.
func (c ResolvedConfig) Values() map[string]string {
	copied := make(map[string]string, len(c.values))
	for k, v := range c.values {
		copied[k] = v
	}
	return copied
}

func (c ResolvedConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.values)
}

func (c *ResolvedConfig) UnmarshalJSON(data []byte) error {
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*c = New(values)
	return nil
}

// lookup returns the raw value and whether it was set to something non-blank.
func (c ResolvedConfig) lookup(key string) (string, bool) {
	v, ok := c.values[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func (c ResolvedConfig) String(key, fallback string) string {
	if v, ok := c.lookup(key); ok {
		return v
	}
	return fallback
}

func (c ResolvedConfig) Bool(key string, fallback bool) bool {
	v, ok := c.lookup(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		slog.Warn("unrecognized boolean setting, using default", "key", key, "value", v)
		return fallback
	}
}

func (c ResolvedConfig) Int(key string, fallback int) int {
	v, ok := c.lookup(key)
	if !ok {
		return fallback
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		if f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64); ferr == nil {
			return int(f)
		}
		slog.Warn("unrecognized integer setting, using default", "key", key, "value", v)
		return fallback
	}
	return i
}

func (c ResolvedConfig) Float(key string, fallback float64) float64 {
	v, ok := c.lookup(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		slog.Warn("unrecognized number setting, using default", "key", key, "value", v)
		return fallback
	}
	return f
}

// Typed accessors with the documented defaults.

func (c ResolvedConfig) KeywordReplyEnabled() bool {
	return c.Bool(KeyEnableKeywordReply, true)
}

func (c ResolvedConfig) KeywordRulesRaw() string {
	return c.String(KeyKeywordRules, "{}")
}

// TransferKeywords falls back to the defaults only when the option is absent.
// A present but blank value disables phrase escalation.
func (c ResolvedConfig) TransferKeywords() []string {
	raw, ok := c.values[KeyTransferKeywords]
	if !ok {
		raw = DefaultTransferKeywords
	}
	var out []string
	for _, kw := range strings.Split(raw, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func (c ResolvedConfig) TelegramNotifyEnabled() bool {
	return c.Bool(KeyEnableTelegramNotify, true)
}

func (c ResolvedConfig) AIReplyEnabled() bool {
	return c.Bool(KeyEnableAIReply, false)
}

func (c ResolvedConfig) AIAPIKey() string {
	return strings.TrimSpace(c.String(KeyAIAPIKey, ""))
}

func (c ResolvedConfig) AIAPIBase() string {
	return c.String(KeyAIAPIBase, DefaultAIAPIBase)
}

func (c ResolvedConfig) AIModel() string {
	return c.String(KeyAIModel, DefaultAIModel)
}

func (c ResolvedConfig) AITemperature() float64 {
	return c.Float(KeyAITemperature, 0.7)
}

func (c ResolvedConfig) AIMaxTokens() int {
	return c.Int(KeyAIMaxTokens, 500)
}

// AITimeoutSeconds is the LLM request timeout.
func (c ResolvedConfig) AITimeoutSeconds() int {
	return c.Int(KeyAITimeout, 60)
}

func (c ResolvedConfig) AISystemPrompt() string {
	return c.String(KeyAISystemPrompt, DefaultSystemPrompt)
}

func (c ResolvedConfig) UserContextEnabled() bool {
	return c.Bool(KeyEnableUserContext, true)
}

// MaxConversationHistory of 0 or less means unbounded.
func (c ResolvedConfig) MaxConversationHistory() int {
	return c.Int(KeyMaxConversationHistory, 0)
}

func (c ResolvedConfig) SpeedLimitWarning() int64 {
	return int64(c.Int(KeySpeedLimitWarning, 50))
}

// AutoReplyDelaySeconds is applied before delivering keyword and AI replies.
func (c ResolvedConfig) AutoReplyDelaySeconds() int {
	return c.Int(KeyAutoReplyDelay, 2)
}

// AutoReplyPrefix marks keyword and escalation replies. Prefixes are returned
// as stored; a configured empty string is replaced by the default so that
// synthetic replies stay recognizable.
func (c ResolvedConfig) AutoReplyPrefix() string {
	if v, ok := c.values[KeyAutoReplyPrefix]; ok && v != "" {
		return v
	}
	return DefaultAutoReplyPrefix
}

func (c ResolvedConfig) AIReplyPrefix() string {
	if v, ok := c.values[KeyAIReplyPrefix]; ok && v != "" {
		return v
	}
	return DefaultAIReplyPrefix
}
