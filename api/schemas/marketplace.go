package schemas

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrElementNotFound means the UI layer exhausted its strategies for a step.
	ErrElementNotFound = errors.New("element not found")
	// ErrSessionLost means the browser is gone and nothing further can be done.
	ErrSessionLost = errors.New("browser session lost")
)

// ListMode selects which conversations the inbox lists.
type ListMode string

const (
	// ListModeMarketplace lists marketplace conversations only.
	ListModeMarketplace ListMode = "marketplace"
	// ListModeAll lists every conversation in the messenger sidebar.
	ListModeAll ListMode = "all"
)

// ParseListMode converts a configured value to a ListMode.
func ParseListMode(s string) (ListMode, error) {
	switch mode := ListMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case ListModeMarketplace, ListModeAll:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown list mode %q", s)
	}
}

// Candidate is a conversation row surfaced by the inbox for one pass.
type Candidate struct {
	// Handle is opaque to callers. The browser layer uses a conversation
	// URL when the row links to one.
	Handle  string `json:"handle"`
	Unread  bool   `json:"unread"`
	Preview string `json:"preview,omitempty"`
}

// RowHandlePrefix marks a Candidate handle that names a row by its position
// in the current listing. Positions shift between passes.
const RowHandlePrefix = "row:"

// Trackable reports whether the handle identifies the same conversation
// across passes, so it can stand in for a thread id.
func (c Candidate) Trackable() bool {
	return c.Handle != "" && !strings.HasPrefix(c.Handle, RowHandlePrefix)
}

// ThreadMetadata describes the open conversation.
type ThreadMetadata struct {
	ThreadID      string `json:"thread_id"`
	BuyerName     string `json:"buyer_name,omitempty"`
	ItemTitleHint string `json:"item_title_hint,omitempty"`
}

// FieldKind names a listing form field.
type FieldKind string

const (
	FieldTitle       FieldKind = "title"
	FieldPrice       FieldKind = "price"
	FieldDescription FieldKind = "description"
	FieldCategory    FieldKind = "category"
	FieldCondition   FieldKind = "condition"
)
