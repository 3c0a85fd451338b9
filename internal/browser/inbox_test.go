// internal/browser/inbox_test.go
package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/marketpilot/api/schemas"
)

func TestListConversations(t *testing.T) {
	t.Run("navigates and puts unread rows first", func(t *testing.T) {
		page := newFakePage("https://www.facebook.com/")
		page.show(conversationRowStrategies[0])
		page.evals[listConversationsScript] = `[
			{"index": 0, "href": "https://www.facebook.com/marketplace/t/111/", "unread": false, "preview": "ok thanks"},
			{"index": 1, "href": "", "unread": true, "preview": "Is this available?"},
			{"index": 2, "href": "https://www.facebook.com/marketplace/t/333/", "unread": true, "preview": "would you take 80"}
		]`
		m := newTestMarketplace(t, page)

		got, err := m.ListConversations(context.Background(), schemas.ListModeMarketplace)
		require.NoError(t, err)
		assert.Equal(t, []schemas.Candidate{
			{Handle: "row:1", Unread: true, Preview: "Is this available?"},
			{Handle: "https://www.facebook.com/marketplace/t/333/", Unread: true, Preview: "would you take 80"},
			{Handle: "https://www.facebook.com/marketplace/t/111/", Unread: false, Preview: "ok thanks"},
		}, got)
		assert.Equal(t, "navigate https://www.facebook.com/marketplace/inbox", page.history()[0])
	})

	t.Run("all mode uses the messenger inbox and skips navigation when already there", func(t *testing.T) {
		page := newFakePage("https://www.facebook.com/messages/t/42")
		page.show(conversationRowStrategies[1])
		page.evals[listConversationsScript] = `[]`
		m := newTestMarketplace(t, page)

		got, err := m.ListConversations(context.Background(), schemas.ListModeAll)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.False(t, page.hasCall("navigate"))
	})

	t.Run("empty inbox is not an error", func(t *testing.T) {
		page := newFakePage("https://www.facebook.com/marketplace/inbox")
		m := newTestMarketplace(t, page)

		got, err := m.ListConversations(context.Background(), schemas.ListModeMarketplace)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.False(t, page.hasCall("evaluate"))
	})

	t.Run("lost session propagates", func(t *testing.T) {
		page := newFakePage("https://www.facebook.com/marketplace/inbox")
		page.countErr = schemas.ErrSessionLost
		m := newTestMarketplace(t, page)

		_, err := m.ListConversations(context.Background(), schemas.ListModeMarketplace)
		assert.ErrorIs(t, err, schemas.ErrSessionLost)
	})
}

func TestOpenConversation(t *testing.T) {
	t.Run("url handle navigates", func(t *testing.T) {
		page := newFakePage("")
		m := newTestMarketplace(t, page)
		require.NoError(t, m.OpenConversation(context.Background(), schemas.Candidate{Handle: "https://www.facebook.com/messages/t/9"}))
		assert.Equal(t, []string{"navigate https://www.facebook.com/messages/t/9"}, page.history())
	})

	t.Run("row handle clicks the tagged row", func(t *testing.T) {
		page := newFakePage("")
		page.evals[clickRowScript(3)] = `true`
		m := newTestMarketplace(t, page)
		require.NoError(t, m.OpenConversation(context.Background(), schemas.Candidate{Handle: "row:3"}))
	})

	t.Run("vanished row", func(t *testing.T) {
		page := newFakePage("")
		page.evals[clickRowScript(0)] = `false`
		m := newTestMarketplace(t, page)
		err := m.OpenConversation(context.Background(), schemas.Candidate{Handle: "row:0"})
		assert.ErrorIs(t, err, schemas.ErrElementNotFound)
	})

	t.Run("unknown handle", func(t *testing.T) {
		m := newTestMarketplace(t, newFakePage(""))
		assert.Error(t, m.OpenConversation(context.Background(), schemas.Candidate{Handle: "thread-7"}))
		assert.Error(t, m.OpenConversation(context.Background(), schemas.Candidate{Handle: "row:x"}))
	})
}

func TestReadLastMessage(t *testing.T) {
	page := newFakePage("")
	page.evals[lastIncomingMessageScript] = `"  Is this available?\n"`
	m := newTestMarketplace(t, page)

	text, err := m.ReadLastMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Is this available?", text)
}

func TestReadThreadMetadata(t *testing.T) {
	page := newFakePage("https://www.facebook.com/marketplace/t/12345/?ref=inbox")
	page.evals[threadHeaderScript] = `{"buyer": " Dana ", "item": "Oak Desk "}`
	m := newTestMarketplace(t, page)

	meta, err := m.ReadThreadMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.ThreadMetadata{ThreadID: "12345", BuyerName: "Dana", ItemTitleHint: "Oak Desk"}, meta)
}

func TestTypeAndSend(t *testing.T) {
	t.Run("types into the first composer found and presses enter", func(t *testing.T) {
		page := newFakePage("")
		page.show(composerStrategies[1])
		m := newTestMarketplace(t, page)

		require.NoError(t, m.TypeAndSend(context.Background(), "Yes, it's still available."))
		assert.Equal(t, "Yes, it's still available.", page.typed[composerStrategies[1]])
		assert.Equal(t, []string{"type " + composerStrategies[1], "enter"}, page.history())
	})

	t.Run("no composer", func(t *testing.T) {
		page := newFakePage("")
		m := newTestMarketplace(t, page)
		err := m.TypeAndSend(context.Background(), "hello")
		assert.ErrorIs(t, err, schemas.ErrElementNotFound)
		assert.False(t, page.hasCall("enter"))
	})
}

func TestThreadIDFromURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://www.facebook.com/messages/t/100012345/", "100012345"},
		{"https://www.facebook.com/marketplace/t/987?ref=x", "987"},
		{"/messages/t/abc%2Fdef", "abc/def"},
		{"https://www.facebook.com/marketplace/inbox", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ThreadIDFromURL(tc.in), tc.in)
	}
}
