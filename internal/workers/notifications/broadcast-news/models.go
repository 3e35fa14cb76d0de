// internal/workers/notifications/broadcast-news/models.go
package broadcastnews

import "league-notifications/internal/notifications/decision"

// Input is the job payload. UserID narrows the broadcast to one user.
type Input struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
	UserID  string `json:"userId,omitempty"`
}

type Output struct {
	Kind           string   `json:"kind"`
	Attempted      int      `json:"attempted"`
	Delivered      int      `json:"delivered"`
	Skipped        int      `json:"skipped"`
	Failed         int      `json:"failed"`
	FailedUsers    []string `json:"failedUsers,omitempty"`
	NotificationID string   `json:"notificationId,omitempty"`
}

var inputSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"kind"},
	"properties": map[string]interface{}{
		"kind":    map[string]interface{}{"type": "string", "enum": []interface{}{"appUpdate", "announcement"}},
		"message": map[string]interface{}{"type": "string", "maxLength": decision.MaxNewsMessageLength},
		"userId":  map[string]interface{}{"type": "string", "minLength": 1},
	},
}
