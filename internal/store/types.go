package store

// Contact is an entry in the locally cached contact directory.
type Contact struct {
	JID                string `json:"id"`
	Name               string `json:"name"`
	Phone              string `json:"phone"`
	UnreadCount        int    `json:"unread_count"`
	LastMessagePreview string `json:"last_message,omitempty"`
	LastMessageAt      int64  `json:"last_message_at,omitempty"`
}

// DisplayName returns the name, falling back to the phone number.
func (c Contact) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Phone
}

// Message delivery states.
const (
	StatusReceived = "received"
	StatusSending  = "sending"
	StatusSent     = "sent"
	StatusFailed   = "failed"
)

// Message is one entry of a conversation. (ChatJID, MsgID) is unique and Seq
// records arrival order.
type Message struct {
	Seq       int64    `json:"seq"`
	ChatJID   string   `json:"chat_id"`
	MsgID     string   `json:"id"`
	Sender    string   `json:"sender"`
	Body      string   `json:"text"`
	FromMe    bool     `json:"is_outbound"`
	Status    string   `json:"status,omitempty"`
	MediaURL  string   `json:"media_url,omitempty"`
	MediaType string   `json:"media_type,omitempty"`
	Buttons   []string `json:"buttons,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	ChatJID      string
	Body         string
	MediaURL     string
	MediaType    string
	Buttons      []string
	Origin       string // manual, auto
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
}

// CampaignGroup is a named recipient list. Members are soft references to
// contact ids and need not exist in the contact cache.
type CampaignGroup struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Members   []string `json:"contacts"`
	CreatedAt int64    `json:"created_at"`
}

// Blast record states.
const (
	BlastCompleted  = "completed"
	BlastFailed     = "failed"
	BlastProcessing = "processing"
)

// BlastRecord is an immutable history entry for one campaign dispatch.
type BlastRecord struct {
	ID            string   `json:"id"`
	CampaignLabel string   `json:"campaign_name"`
	Message       string   `json:"message"`
	Recipients    []string `json:"recipients"`
	DispatchedAt  int64    `json:"timestamp"`
	Status        string   `json:"status"`
}
