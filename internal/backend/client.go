package backend

import "fmt"

// Client bundles the backend services a session works against. It is built
// once at startup and passed to whatever needs it.
type Client struct {
	Auth    Auth
	Data    DataStore
	Changes ChangeFeed
}

func NewClient(auth Auth, data DataStore, changes ChangeFeed) (*Client, error) {
	if auth == nil {
		return nil, fmt.Errorf("backend client: auth is required")
	}
	if data == nil {
		return nil, fmt.Errorf("backend client: data store is required")
	}
	if changes == nil {
		return nil, fmt.Errorf("backend client: change feed is required")
	}
	return &Client{Auth: auth, Data: data, Changes: changes}, nil
}
