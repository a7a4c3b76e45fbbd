package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
)

// Client wraps a Firestore client for deployments that run the ownership
// store on Firestore instead of Postgres. Credentials come from the ambient
// service account or GOOGLE_APPLICATION_CREDENTIALS.
type Client struct {
	FS *firestore.Client
}

// New connects to the project's Firestore database.
func New(ctx context.Context, projectID string) (*Client, error) {
	fs, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Client{FS: fs}, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.FS.Close()
}
