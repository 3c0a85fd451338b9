// internal/browser/inbox.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marketpilot/api/schemas"
)

// threadPathPattern extracts the thread id from a messenger or marketplace thread URL.
var threadPathPattern = regexp.MustCompile(`/(?:messages|marketplace)/t/([^/?#]+)`)

type conversationRow struct {
	Index   int    `json:"index"`
	Href    string `json:"href"`
	Unread  bool   `json:"unread"`
	Preview string `json:"preview"`
}

type threadHeader struct {
	Buyer string `json:"buyer"`
	Item  string `json:"item"`
}

func (m *Marketplace) inboxURL(mode schemas.ListMode) string {
	if mode == schemas.ListModeAll {
		return m.url(m.cfg.MessagesPath)
	}
	return m.url(m.cfg.InboxPath)
}

// ListConversations opens the inbox for mode if it is not already showing and
// returns its rows. An inbox without rows yields no candidates and no error.
func (m *Marketplace) ListConversations(ctx context.Context, mode schemas.ListMode) ([]schemas.Candidate, error) {
	target := m.inboxURL(mode)
	loc, err := m.page.Location(ctx)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(loc, target) {
		if err := m.page.Navigate(ctx, target); err != nil {
			return nil, err
		}
	}

	if _, err := m.locate(ctx, "conversation list", conversationRowStrategies); err != nil {
		if errors.Is(err, schemas.ErrElementNotFound) {
			m.logger.Info("Inbox shows no conversations.", zap.String("mode", string(mode)))
			return nil, nil
		}
		return nil, err
	}

	var rows []conversationRow
	if err := m.page.Evaluate(ctx, listConversationsScript, &rows); err != nil {
		return nil, fmt.Errorf("failed to read conversation list: %w", err)
	}

	candidates := make([]schemas.Candidate, 0, len(rows))
	for _, r := range rows {
		handle := r.Href
		if handle == "" {
			handle = schemas.RowHandlePrefix + strconv.Itoa(r.Index)
		}
		candidates = append(candidates, schemas.Candidate{Handle: handle, Unread: r.Unread, Preview: r.Preview})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Unread && !candidates[j].Unread
	})
	m.logger.Debug("Listed conversations.", zap.Int("count", len(candidates)))
	return candidates, nil
}

// OpenConversation navigates to a URL handle, or clicks the tagged row for a
// row handle.
func (m *Marketplace) OpenConversation(ctx context.Context, c schemas.Candidate) error {
	switch {
	case strings.HasPrefix(c.Handle, "http://"), strings.HasPrefix(c.Handle, "https://"):
		return m.page.Navigate(ctx, c.Handle)
	case strings.HasPrefix(c.Handle, schemas.RowHandlePrefix):
		index, err := strconv.Atoi(strings.TrimPrefix(c.Handle, schemas.RowHandlePrefix))
		if err != nil {
			return fmt.Errorf("malformed conversation handle %q: %w", c.Handle, err)
		}
		var clicked bool
		if err := m.page.Evaluate(ctx, clickRowScript(index), &clicked); err != nil {
			return fmt.Errorf("failed to click conversation row: %w", err)
		}
		if !clicked {
			return fmt.Errorf("%w: conversation row %d", schemas.ErrElementNotFound, index)
		}
		return m.page.Sleep(ctx, m.settle)
	default:
		return fmt.Errorf("unrecognized conversation handle %q", c.Handle)
	}
}

// ReadLastMessage returns the newest message from the other party.
func (m *Marketplace) ReadLastMessage(ctx context.Context) (string, error) {
	var text string
	if err := m.page.Evaluate(ctx, lastIncomingMessageScript, &text); err != nil {
		return "", fmt.Errorf("failed to read last message: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// ReadThreadMetadata reads the thread id from the page URL and the buyer name
// and item hint from the thread header.
func (m *Marketplace) ReadThreadMetadata(ctx context.Context) (schemas.ThreadMetadata, error) {
	loc, err := m.page.Location(ctx)
	if err != nil {
		return schemas.ThreadMetadata{}, err
	}
	var hdr threadHeader
	if err := m.page.Evaluate(ctx, threadHeaderScript, &hdr); err != nil {
		return schemas.ThreadMetadata{}, fmt.Errorf("failed to read thread header: %w", err)
	}
	return schemas.ThreadMetadata{
		ThreadID:      ThreadIDFromURL(loc),
		BuyerName:     strings.TrimSpace(hdr.Buyer),
		ItemTitleHint: strings.TrimSpace(hdr.Item),
	}, nil
}

// TypeAndSend types text into the message composer and presses Enter.
func (m *Marketplace) TypeAndSend(ctx context.Context, text string) error {
	if err := m.typeInto(ctx, "message composer", composerStrategies, text); err != nil {
		return err
	}
	if err := m.page.PressEnter(ctx); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	m.logger.Debug("Message sent.", zap.Int("length", len(text)))
	return nil
}

// ThreadIDFromURL returns the thread id in a thread URL, or "" if the URL is
// not a thread page.
func ThreadIDFromURL(raw string) string {
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.EscapedPath()
	}
	match := threadPathPattern.FindStringSubmatch(path)
	if match == nil {
		return ""
	}
	id, err := url.PathUnescape(match[1])
	if err != nil {
		return match[1]
	}
	return id
}
