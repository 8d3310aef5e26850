package swcache

import (
	"encoding/json"
)

// NotificationAction is one of the two fixed actions attached to every notification
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// NotificationData is the custom payload carried by a push notification
type NotificationData struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Notification is the displayed push notification
type Notification struct {
	Title     string               `json:"title"`
	Body      string               `json:"body"`
	Icon      string               `json:"icon"`
	Badge     string               `json:"badge"`
	Tag       string               `json:"tag"`
	Data      NotificationData     `json:"data"`
	Vibration []int                `json:"vibrate"`
	Actions   []NotificationAction `json:"actions"`
}

// ActionClose dismisses the notification with no navigation
const ActionClose = "close"

var defaultActions = []NotificationAction{
	{Action: "open", Title: "Abrir"},
	{Action: ActionClose, Title: "Cerrar"},
}

var defaultVibration = []int{200, 100, 200}

// ParsePush decodes a push payload defensively: a malformed payload yields a
// fixed fallback notification instead of being dropped
func ParsePush(payload []byte) Notification {
	var notification Notification
	if err := json.Unmarshal(payload, &notification); err != nil || notification.Title == "" {
		notification = Notification{
			Title: "InclusiveAI Coach",
			Body:  "Tienes una nueva notificación",
		}
	}

	if notification.Icon == "" {
		notification.Icon = "/icons/icon-192x192.png"
	}
	if notification.Badge == "" {
		notification.Badge = "/icons/badge-72x72.png"
	}
	if notification.Tag == "" {
		notification.Tag = "inclusive-ai-coach"
	}
	notification.Vibration = defaultVibration
	notification.Actions = defaultActions

	return notification
}

// ClickRoute resolves the route a notification click navigates to. The close
// action returns an empty route, meaning no navigation.
func ClickRoute(action string, data NotificationData) string {
	if action == ActionClose {
		return ""
	}

	switch data.Type {
	case "lesson":
		return "/lessons"
	case "assessment":
		return "/assessments"
	case "achievement":
		return "/achievements"
	case "support":
		return "/support"
	default:
		return "/"
	}
}
