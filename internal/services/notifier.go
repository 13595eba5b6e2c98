package services

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/crewtrack/backend/internal/models"
)

// Event types dispatched to workspace webhooks
const (
	EventSessionClaimed = "session_claimed"
	EventQuotaCompleted = "quota_completed"
	EventResetPerformed = "reset_performed"
)

// Notifier posts structured events to a workspace's webhook. Dispatch is
// fire-and-forget: delivery failures are logged and never block or roll
// back the operation that produced the event.
type Notifier struct {
	httpClient *http.Client
}

func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookEvent struct {
	Type        string                 `json:"type"`
	WorkspaceID uint                   `json:"workspace_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Data        map[string]interface{} `json:"data"`
}

// Dispatch sends an event asynchronously. A workspace without a webhook URL
// is a no-op.
func (n *Notifier) Dispatch(workspace *models.Workspace, eventType string, data map[string]interface{}) {
	if workspace == nil || workspace.WebhookURL == "" {
		return
	}

	event := webhookEvent{
		Type:        eventType,
		WorkspaceID: workspace.ID,
		OccurredAt:  time.Now().UTC(),
		Data:        data,
	}

	go func() {
		payload, err := json.Marshal(event)
		if err != nil {
			log.Printf("Notifier: failed to encode %s event for workspace %d: %v", eventType, workspace.ID, err)
			return
		}

		resp, err := n.httpClient.Post(workspace.WebhookURL, "application/json", bytes.NewReader(payload))
		if err != nil {
			log.Printf("Notifier: %s delivery failed for workspace %d: %v", eventType, workspace.ID, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			log.Printf("Notifier: %s delivery for workspace %d returned status %d", eventType, workspace.ID, resp.StatusCode)
		}
	}()
}
