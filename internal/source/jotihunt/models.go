package jotihunt

import "encoding/json"

// envelope is the wrapper every upstream list endpoint responds with.
type envelope[T any] struct {
	Data []T `json:"data"`
}

type Article struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	Type      string          `json:"type"`
	PublishAt string          `json:"publish_at"`
	Message   json.RawMessage `json:"message"`
}

type Area struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}
