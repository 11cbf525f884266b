package domain

import (
	"encoding/json"
	"time"
)

// ItemType is the stored type of a hunt feed entry.
type ItemType string

const (
	ItemTypeNews       ItemType = "news"
	ItemTypeHint       ItemType = "hint"
	ItemTypeAssignment ItemType = "assignment"
)

// ItemTypes lists every recognized item type in display order.
var ItemTypes = []ItemType{ItemTypeNews, ItemTypeHint, ItemTypeAssignment}

// ParseItemType returns the ItemType for s, or false when s is not one of
// news, hint or assignment.
func ParseItemType(s string) (ItemType, bool) {
	switch t := ItemType(s); t {
	case ItemTypeNews, ItemTypeHint, ItemTypeAssignment:
		return t, true
	}
	return "", false
}

// CategoryType maps a plural API category (news, hints, assignments) onto its
// stored item type.
func CategoryType(category string) (ItemType, bool) {
	switch category {
	case "news":
		return ItemTypeNews, true
	case "hints":
		return ItemTypeHint, true
	case "assignments":
		return ItemTypeAssignment, true
	}
	return "", false
}

type Item struct {
	ID          int64     `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Type        ItemType  `db:"type" json:"type"`
	PublishAt   time.Time `db:"publish_at" json:"publish_at"`
	RetrievedAt time.Time `db:"retrieved_at" json:"retrieved_at"`

	// Locally owned; never taken from upstream.
	AssignedTo *string `db:"assigned_to" json:"assignedTo"`
	Completed  bool    `db:"completed" json:"completed"`
	Reviewed   bool    `db:"reviewed" json:"reviewed"`
	Points     int     `db:"points" json:"points"`
}

// LocalFields are the item columns edited by hunt participants.
type LocalFields struct {
	AssignedTo *string
	Completed  bool
	Reviewed   bool
	Points     int
}

func (i *Item) Local() LocalFields {
	return LocalFields{
		AssignedTo: i.AssignedTo,
		Completed:  i.Completed,
		Reviewed:   i.Reviewed,
		Points:     i.Points,
	}
}

func (i *Item) ApplyLocal(l LocalFields) {
	i.AssignedTo = l.AssignedTo
	i.Completed = l.Completed
	i.Reviewed = l.Reviewed
	i.Points = l.Points
}

// SameUpstream reports whether the upstream-owned fields other than
// RetrievedAt are equal.
func (i *Item) SameUpstream(o *Item) bool {
	return i.ID == o.ID &&
		i.Title == o.Title &&
		i.Type == o.Type &&
		i.PublishAt.Equal(o.PublishAt)
}

// Content is the message body of an item, stored as serialized JSON.
type Content struct {
	ID      int64  `db:"id" json:"id"`
	Message string `db:"message" json:"-"`
}

// Parsed returns the stored message as raw JSON. A body that is not valid
// JSON is returned as a JSON string.
func (c *Content) Parsed() json.RawMessage {
	if json.Valid([]byte(c.Message)) {
		return json.RawMessage(c.Message)
	}
	quoted, _ := json.Marshal(c.Message)
	return quoted
}

// Body returns the human readable text of the message: its "content" field
// when the message is an object, otherwise the raw message.
func (c *Content) Body() string {
	var msg struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(c.Message), &msg); err == nil && msg.Content != "" {
		return msg.Content
	}
	var s string
	if err := json.Unmarshal([]byte(c.Message), &s); err == nil {
		return s
	}
	return c.Message
}

type Plan struct {
	ID        int64     `db:"id" json:"id"`
	ItemID    int64     `db:"item_id" json:"item_id"`
	ItemTitle string    `db:"item_title" json:"item_title"`
	Content   string    `db:"plan_content" json:"plan_content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Stats aggregates item counters over the whole store.
type Stats struct {
	TotalItems     int              `json:"totalItems"`
	ItemsByType    map[ItemType]int `json:"itemsByType"`
	CompletedItems int              `json:"completedItems"`
	ReviewedItems  int              `json:"reviewedItems"`
	TotalPoints    int              `json:"totalPoints"`
}

// NewStats computes Stats from items grouped by type.
func NewStats(byType map[ItemType][]Item) Stats {
	stats := Stats{ItemsByType: make(map[ItemType]int, len(ItemTypes))}
	for _, t := range ItemTypes {
		items := byType[t]
		stats.ItemsByType[t] = len(items)
		stats.TotalItems += len(items)
		for _, item := range items {
			if item.Completed {
				stats.CompletedItems++
			}
			if item.Reviewed {
				stats.ReviewedItems++
			}
			stats.TotalPoints += item.Points
		}
	}
	return stats
}
