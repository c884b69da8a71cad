package models

// ClientUpdate reports a collaborator's cursor position.
type ClientUpdate struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	DocID         string `json:"doc_id"`
	Row           int    `json:"row"`
	Column        int    `json:"column"`
	LastUpdatedAt int64  `json:"last_updated_at,omitempty"`
}

type ChatMessage struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
	UserID    string  `json:"user_id,omitempty"`
	User      *Member `json:"user,omitempty"`
	ClientID  string  `json:"clientId,omitempty"`
}
