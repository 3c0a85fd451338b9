package schemas

import (
	"context"
)

// Inbox is the conversation side of the marketplace UI. Implementations own
// every selector and retry strategy; callers only see the outcome. A step
// whose element cannot be located returns an error wrapping
// ErrElementNotFound. A browser that is gone returns ErrSessionLost.
type Inbox interface {
	// ListConversations returns the visible conversations, unread ones first.
	ListConversations(ctx context.Context, mode ListMode) ([]Candidate, error)
	// OpenConversation brings the given conversation into view.
	OpenConversation(ctx context.Context, candidate Candidate) error
	// ReadLastMessage returns the text of the last message sent by the other
	// party in the open conversation. An empty string means no message.
	ReadLastMessage(ctx context.Context) (string, error)
	// ReadThreadMetadata describes the open conversation.
	ReadThreadMetadata(ctx context.Context) (ThreadMetadata, error)
	// TypeAndSend types text into the composer of the open conversation and sends it.
	TypeAndSend(ctx context.Context, text string) error
}

// FormDriver is the listing-creation side of the marketplace UI.
type FormDriver interface {
	// OpenCreateForm navigates to an empty item listing form.
	OpenCreateForm(ctx context.Context) error
	// FillField sets one form field. Implementations clear existing content first.
	FillField(ctx context.Context, kind FieldKind, value string) error
	// UploadFiles attaches photos and waits for the upload to be accepted.
	UploadFiles(ctx context.Context, paths []string) error
	// AdvancePage moves to the next page of the form.
	AdvancePage(ctx context.Context) error
	// Publish submits the listing.
	Publish(ctx context.Context) error
}

// Authenticator signs the session in when it is not already.
type Authenticator interface {
	// Login submits credentials if a login form is showing. It reports
	// whether a login was performed.
	Login(ctx context.Context, email, password string) (bool, error)
}
