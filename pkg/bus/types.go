package bus

// InboundMessage is a user message arriving from a channel (Discord, CLI, HTTP).
type InboundMessage struct {
	Channel    string `json:"channel"`
	SenderID   string `json:"sender_id"`
	ChatID     string `json:"chat_id"`
	Content    string `json:"content"`
	SessionKey string `json:"session_key"`
}

// OutboundMessage is agent output destined for a channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

// Notification is a scheduler firing event for external delivery (UI, email).
// Autonomous missions never produce one; they deliver their own results.
type Notification struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
	FiredAt int64  `json:"fired_at"`
}

type MessageHandler func(msg InboundMessage) (string, error)
