// Package remote defines the collaborator contracts and HTTP clients.
package remote

import (
	"context"
	"time"
)

// RESTNotifier delivers notifications by inserting rows into the hosted
// notifications table; the backend fans them out as push messages.
type RESTNotifier struct {
	store DataStore
}

// NewRESTNotifier creates a RESTNotifier on an existing DataStore.
func NewRESTNotifier(store DataStore) *RESTNotifier {
	return &RESTNotifier{store: store}
}

// CreateNotification implements Notifier.
func (n *RESTNotifier) CreateNotification(ctx context.Context, userID, title, message, severity string, opts map[string]interface{}) error {
	row := Row{
		"user_id":    userID,
		"title":      title,
		"message":    message,
		"severity":   severity,
		"created_at": time.Now().Unix(),
	}
	for k, v := range opts {
		row[k] = v
	}
	_, err := n.store.Insert(ctx, "notifications", row)
	return err
}
