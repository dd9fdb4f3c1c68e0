package chat

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one cached conversation entry. Cached turns and durable messages
// share the same role vocabulary.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Session is a chat session header as listed in the sidebar.
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Message is one durable chat message, ordered by TimestampMS within its
// session. Messages are immutable once written.
type Message struct {
	Role        string `json:"role"`
	Text        string `json:"text"`
	TimestampMS int64  `json:"createdAt"`
}
