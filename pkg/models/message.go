package models

import (
	"strings"
	"time"
)

// ChannelType identifies a messaging surface.
type ChannelType string

const (
	ChannelCLI      ChannelType = "cli"
	ChannelTelegram ChannelType = "telegram"
	ChannelCron     ChannelType = "cron"
)

// Role indicates the message author type in conversation history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MediaType classifies an attachment.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
	MediaFile  MediaType = "file"
)

// Media is a file or inline attachment carried on a message.
// At least one of Path or Data must be set for the media to be usable.
type Media struct {
	Type     MediaType `json:"type"`
	Path     string    `json:"path,omitempty"`
	MimeType string    `json:"mime_type,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Data     []byte    `json:"data,omitempty"`
}

// Usable reports whether the media carries any retrievable content.
func (m Media) Usable() bool {
	return m.Path != "" || len(m.Data) > 0
}

// InboundMessage is a user message arriving from a channel (or synthesized
// by the scheduler) on its way to the agent loop.
type InboundMessage struct {
	Channel  ChannelType    `json:"channel"`
	SenderID string         `json:"sender_id"`
	ChatID   string         `json:"chat_id"`
	Content  string         `json:"content"`
	Media    []Media        `json:"media,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SessionKey returns the durable conversation key for this message.
func (m InboundMessage) SessionKey() string {
	return SessionKey(m.Channel, m.ChatID)
}

// SessionKey builds the conversation key for a channel and chat.
func SessionKey(channel ChannelType, chatID string) string {
	return string(channel) + ":" + chatID
}

// SplitSessionKey is the inverse of SessionKey. The second return is empty
// when the key has no separator.
func SplitSessionKey(key string) (ChannelType, string) {
	channel, chatID, ok := strings.Cut(key, ":")
	if !ok {
		return ChannelType(key), ""
	}
	return ChannelType(channel), chatID
}

// OutboundMessage is a message on its way from the agent (or scheduler)
// to a channel adapter.
type OutboundMessage struct {
	Channel  ChannelType    `json:"channel"`
	ChatID   string         `json:"chat_id"`
	Content  string         `json:"content"`
	Media    []Media        `json:"media,omitempty"`
	ReplyTo  string         `json:"reply_to,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is one record of session history. Appended records are never
// mutated; tool-role messages carry the tool call id and tool name they
// answer.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Media      []Media    `json:"media,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
}

// Usage reports token consumption for one provider call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// NewUsage builds a Usage with the total derived from its parts.
func NewUsage(in, out int) Usage {
	return Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}

// Add accumulates another usage record into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// StopReason indicates why a provider response ended.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// ToolExecution is emitted once per tool invocation. Exactly one of
// Result or Error is set.
type ToolExecution struct {
	ToolCallID string         `json:"tool_call_id"`
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Result     string         `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

// AgentState is a per-session agent loop state.
type AgentState string

const (
	StateIdle           AgentState = "idle"
	StateBuilding       AgentState = "building"
	StateAwaitingModel  AgentState = "awaiting_model"
	StateExecutingTools AgentState = "executing_tools"
	StatePublishing     AgentState = "publishing"
	StateFailed         AgentState = "failed"
)

// StateChange is emitted on every agent loop state transition.
type StateChange struct {
	SessionKey string     `json:"session_key"`
	From       AgentState `json:"from"`
	To         AgentState `json:"to"`
	Reason     string     `json:"reason,omitempty"`
}
