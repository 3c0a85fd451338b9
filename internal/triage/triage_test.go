package triage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/marketpilot/api/schemas"
	"github.com/xkilldash9x/marketpilot/internal/catalog"
	"github.com/xkilldash9x/marketpilot/internal/config"
	"github.com/xkilldash9x/marketpilot/internal/mocks"
	"github.com/xkilldash9x/marketpilot/internal/reply"
	"github.com/xkilldash9x/marketpilot/internal/threadstate"
	"go.uber.org/zap/zaptest"
)

// fixture wires a Triage to real stores in a temp directory and a mock inbox.
type fixture struct {
	inbox   *mocks.MockInbox
	threads *threadstate.Store
	items   *catalog.Catalog
	triage  *Triage
	dir     string
}

func newFixture(t *testing.T, catalogJSON string, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "output.json")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogJSON), 0o644))

	logger := zaptest.NewLogger(t)
	f := &fixture{
		inbox:   new(mocks.MockInbox),
		threads: threadstate.Open(filepath.Join(dir, "buyer_state.json"), logger),
		items:   catalog.Open(catalogPath, logger),
		dir:     dir,
	}
	f.triage = New(f.inbox, f.threads, f.items, logger, opts...)
	f.triage.newPassID = func() string { return "pass-1" }
	t.Cleanup(func() { f.inbox.AssertExpectations(t) })
	return f
}

// expectConversation sets up one open-read-metadata sequence.
func (f *fixture) expectConversation(c schemas.Candidate, text string, meta schemas.ThreadMetadata) {
	f.inbox.On("OpenConversation", mock.Anything, c).Return(nil).Once()
	f.inbox.On("ReadLastMessage", mock.Anything).Return(text, nil).Once()
	f.inbox.On("ReadThreadMetadata", mock.Anything).Return(meta, nil).Once()
}

const lampCatalog = `[{"ID": 1, "Title": "Vintage Lamp", "Price": 50}]`

const deskCatalog = `[
	{"ID": 1, "Title": "Vintage Lamp", "Price": 50},
	{"ID": 3, "Title": "Oak Desk", "Price": 100, "Bottom": 70}
]`

func TestEndToEndAvailabilityThenRepeat(t *testing.T) {
	f := newFixture(t, lampCatalog)
	ctx := context.Background()
	c := schemas.Candidate{Handle: "https://www.facebook.com/messages/t/T1", Unread: true}
	meta := schemas.ThreadMetadata{ThreadID: "T1", BuyerName: "Sam"}

	f.inbox.On("ListConversations", mock.Anything, schemas.ListModeMarketplace).Return([]schemas.Candidate{c}, nil).Twice()
	f.expectConversation(c, "Is this available?", meta)
	f.inbox.On("TypeAndSend", mock.Anything, mock.MatchedBy(func(text string) bool {
		return text != ""
	})).Return(nil).Once()

	res, err := f.triage.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplied, res.Outcome)
	assert.Equal(t, "pass-1", res.PassID)
	assert.Equal(t, reply.IntentAvailability, res.Intent)
	assert.Nil(t, res.ItemID, "no token of the catalog overlaps the message")
	assert.NotContains(t, res.Reply, "$50")
	assert.False(t, f.threads.NeedsReply("T1", "Is this available?"))
	assert.Equal(t, "Sam", f.threads.GetOrCreate("T1").BuyerName)

	// The same message on the next pass is not answered again.
	f.expectConversation(c, "Is this available?", meta)
	res, err = f.triage.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySeen, res.Outcome)
	f.inbox.AssertNumberOfCalls(t, "TypeAndSend", 1)
}

func TestPassMatchesItemAndNegotiates(t *testing.T) {
	f := newFixture(t, deskCatalog)
	c := schemas.Candidate{Handle: "T2"}
	f.inbox.On("ListConversations", mock.Anything, schemas.ListModeMarketplace).Return([]schemas.Candidate{c}, nil).Once()
	f.expectConversation(c, "would you take 60", schemas.ThreadMetadata{ThreadID: "T2", ItemTitleHint: "Oak Desk · $100"})
	f.inbox.On("TypeAndSend", mock.Anything, mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "$70")
	})).Return(nil).Once()

	res, err := f.triage.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplied, res.Outcome)
	assert.Equal(t, reply.IntentCounter, res.Intent)
	assert.Equal(t, "header", res.ItemMatch)
	require.NotNil(t, res.ItemID)
	assert.Equal(t, 3, *res.ItemID)

	item, _ := f.items.FindByID(3)
	assert.Equal(t, catalog.StatusInConversation, item.Status)
	state := f.threads.GetOrCreate("T2")
	require.NotNil(t, state.ItemID)
	assert.Equal(t, 3, *state.ItemID)
}

func TestPassFallsBackToStoredItem(t *testing.T) {
	f := newFixture(t, deskCatalog)
	three := 3
	require.NoError(t, f.threads.SetItemID("T3", &three))

	c := schemas.Candidate{Handle: "T3"}
	f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return([]schemas.Candidate{c}, nil).Once()
	f.expectConversation(c, "ok would you take 80", schemas.ThreadMetadata{ThreadID: "T3"})
	f.inbox.On("TypeAndSend", mock.Anything, mock.Anything).Return(nil).Once()

	res, err := f.triage.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "thread", res.ItemMatch)
	assert.Equal(t, reply.IntentAccept, res.Intent)
	assert.Contains(t, res.Reply, "$80")
}

func TestPassSendFailureKeepsMessageNew(t *testing.T) {
	f := newFixture(t, lampCatalog)
	c := schemas.Candidate{Handle: "T1"}
	f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return([]schemas.Candidate{c}, nil).Once()
	f.expectConversation(c, "hello", schemas.ThreadMetadata{ThreadID: "T1"})
	f.inbox.On("TypeAndSend", mock.Anything, mock.Anything).Return(schemas.ErrElementNotFound).Once()

	_, err := f.triage.RunPass(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrElementNotFound)
	assert.True(t, f.threads.HasNewMessage("T1", "hello"), "a failed send must be retried next pass")
	assert.True(t, f.threads.NeedsReply("T1", "hello"))
}

func TestPassNoActionableData(t *testing.T) {
	t.Run("no candidates", func(t *testing.T) {
		f := newFixture(t, lampCatalog)
		f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return(nil, nil).Once()
		res, err := f.triage.RunPass(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoCandidates, res.Outcome)
	})

	t.Run("inbox element missing", func(t *testing.T) {
		f := newFixture(t, lampCatalog)
		f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return(nil, schemas.ErrElementNotFound).Once()
		res, err := f.triage.RunPass(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoCandidates, res.Outcome)
	})

	t.Run("no message text", func(t *testing.T) {
		f := newFixture(t, lampCatalog)
		c := schemas.Candidate{Handle: "T1"}
		f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return([]schemas.Candidate{c}, nil).Once()
		f.inbox.On("OpenConversation", mock.Anything, c).Return(nil).Once()
		f.inbox.On("ReadLastMessage", mock.Anything).Return("", schemas.ErrElementNotFound).Once()
		res, err := f.triage.RunPass(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoMessage, res.Outcome)
	})

	t.Run("open failed", func(t *testing.T) {
		f := newFixture(t, lampCatalog)
		c := schemas.Candidate{Handle: "T1"}
		f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return([]schemas.Candidate{c}, nil).Once()
		f.inbox.On("OpenConversation", mock.Anything, c).Return(schemas.ErrElementNotFound).Once()
		res, err := f.triage.RunPass(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeOpenFailed, res.Outcome)
	})

	t.Run("session lost propagates", func(t *testing.T) {
		f := newFixture(t, lampCatalog)
		f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return(nil, schemas.ErrSessionLost).Once()
		_, err := f.triage.RunPass(context.Background())
		assert.ErrorIs(t, err, schemas.ErrSessionLost)
	})

	t.Run("thread id falls back to handle", func(t *testing.T) {
		f := newFixture(t, lampCatalog)
		handle := "https://www.facebook.com/messages/e2ee/t/7"
		c := schemas.Candidate{Handle: handle}
		f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return([]schemas.Candidate{c}, nil).Once()
		f.expectConversation(c, "hello", schemas.ThreadMetadata{})
		f.inbox.On("TypeAndSend", mock.Anything, mock.Anything).Return(nil).Once()
		res, err := f.triage.RunPass(context.Background())
		require.NoError(t, err)
		assert.Equal(t, handle, res.ThreadID)
		assert.False(t, f.threads.NeedsReply(handle, "hello"))
	})

	t.Run("row position is not a thread id", func(t *testing.T) {
		f := newFixture(t, lampCatalog)
		c := schemas.Candidate{Handle: schemas.RowHandlePrefix + "0", Unread: true}
		f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return([]schemas.Candidate{c}, nil).Once()
		f.expectConversation(c, "hello", schemas.ThreadMetadata{BuyerName: "Sam"})
		res, err := f.triage.RunPass(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoThreadID, res.Outcome)
		f.inbox.AssertNotCalled(t, "TypeAndSend", mock.Anything, mock.Anything)
		assert.Empty(t, f.threads.ThreadIDs())
	})
}

func TestPassAlreadyReplied(t *testing.T) {
	f := newFixture(t, lampCatalog)
	require.NoError(t, f.threads.MarkReplied("T1", "first"))
	require.NoError(t, f.threads.MarkSeen("T1", "second"))

	c := schemas.Candidate{Handle: "T1"}
	f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return([]schemas.Candidate{c}, nil).Once()
	f.expectConversation(c, "first", schemas.ThreadMetadata{ThreadID: "T1"})

	res, err := f.triage.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyReplied, res.Outcome)
	assert.False(t, f.threads.HasNewMessage("T1", "first"))
	f.inbox.AssertNotCalled(t, "TypeAndSend", mock.Anything, mock.Anything)
}

func TestPassDryRunWritesNothing(t *testing.T) {
	f := newFixture(t, deskCatalog, WithDryRun(true))
	c := schemas.Candidate{Handle: "T1"}
	f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return([]schemas.Candidate{c}, nil).Once()
	f.expectConversation(c, "is the desk still available", schemas.ThreadMetadata{ThreadID: "T1", BuyerName: "Kim"})

	res, err := f.triage.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDryRun, res.Outcome)
	assert.Contains(t, res.Reply, "$100")
	f.inbox.AssertNotCalled(t, "TypeAndSend", mock.Anything, mock.Anything)

	_, statErr := os.Stat(filepath.Join(f.dir, "buyer_state.json"))
	assert.True(t, os.IsNotExist(statErr), "dry run must not write thread state")
	item, _ := f.items.FindByID(3)
	assert.Equal(t, catalog.StatusDraft, item.Status)
}

func TestPassScanDepth(t *testing.T) {
	f := newFixture(t, lampCatalog, WithScanDepth(2))
	require.NoError(t, f.threads.MarkReplied("T1", "thanks"))

	first := schemas.Candidate{Handle: "T1", Unread: true}
	second := schemas.Candidate{Handle: "T2"}
	f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return([]schemas.Candidate{second, first}, nil).Once()
	f.expectConversation(first, "thanks", schemas.ThreadMetadata{ThreadID: "T1"})
	f.expectConversation(second, "hello", schemas.ThreadMetadata{ThreadID: "T2"})
	f.inbox.On("TypeAndSend", mock.Anything, mock.Anything).Return(nil).Once()

	res, err := f.triage.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplied, res.Outcome)
	assert.Equal(t, "T2", res.ThreadID)
	assert.Equal(t, 2, res.Examined)
}

func TestPassDefaultDepthExaminesOneCandidate(t *testing.T) {
	f := newFixture(t, lampCatalog)
	require.NoError(t, f.threads.MarkReplied("T1", "thanks"))

	first := schemas.Candidate{Handle: "T1", Unread: true}
	f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return([]schemas.Candidate{{Handle: "T2"}, first}, nil).Once()
	f.expectConversation(first, "thanks", schemas.ThreadMetadata{ThreadID: "T1"})

	res, err := f.triage.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySeen, res.Outcome)
	assert.Equal(t, 1, res.Examined)
}

func TestPassCatalogWriteFailureIsFatalForPass(t *testing.T) {
	f := newFixture(t, deskCatalog)
	// Replace the catalog directory entry with a directory so the rename fails.
	catalogPath := filepath.Join(f.dir, "output.json")
	require.NoError(t, os.Remove(catalogPath))
	require.NoError(t, os.Mkdir(catalogPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(catalogPath, "keep"), nil, 0o644))

	c := schemas.Candidate{Handle: "T1"}
	f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return([]schemas.Candidate{c}, nil).Once()
	f.expectConversation(c, "is the desk available", schemas.ThreadMetadata{ThreadID: "T1"})

	_, err := f.triage.RunPass(context.Background())
	require.Error(t, err)
	f.inbox.AssertNotCalled(t, "TypeAndSend", mock.Anything, mock.Anything)
}

func TestPassRetriesCatalogWriteNextPass(t *testing.T) {
	f := newFixture(t, deskCatalog)
	catalogPath := filepath.Join(f.dir, "output.json")
	require.NoError(t, os.Remove(catalogPath))
	require.NoError(t, os.Mkdir(catalogPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(catalogPath, "keep"), nil, 0o644))

	c := schemas.Candidate{Handle: "T1"}
	f.inbox.On("ListConversations", mock.Anything, mock.Anything).Return([]schemas.Candidate{c}, nil).Twice()
	f.expectConversation(c, "is the desk available", schemas.ThreadMetadata{ThreadID: "T1"})
	_, err := f.triage.RunPass(context.Background())
	require.Error(t, err)

	require.NoError(t, os.RemoveAll(catalogPath))
	f.expectConversation(c, "is the desk available", schemas.ThreadMetadata{ThreadID: "T1"})
	f.inbox.On("TypeAndSend", mock.Anything, mock.Anything).Return(nil).Once()

	res, err := f.triage.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplied, res.Outcome)

	item, ok := catalog.Open(catalogPath, zaptest.NewLogger(t)).FindByID(3)
	require.True(t, ok, "catalog written on the second pass")
	assert.Equal(t, catalog.StatusInConversation, item.Status)
}

func TestPrioritize(t *testing.T) {
	in := []schemas.Candidate{
		{Handle: "a"}, {Handle: "b", Unread: true}, {Handle: "c"}, {Handle: "d", Unread: true},
	}
	out := Prioritize(in)
	handles := make([]string, len(out))
	for i, c := range out {
		handles[i] = c.Handle
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, handles)
	assert.Equal(t, "a", in[0].Handle, "input is not modified")
	assert.Empty(t, Prioritize(nil))
}

func TestFromConfig(t *testing.T) {
	tr := New(new(mocks.MockInbox), nil, nil, zaptest.NewLogger(t), FromConfig(config.TriageConfig{ListMode: "all", ScanDepth: 0, DryRun: true})...)
	assert.Equal(t, schemas.ListModeAll, tr.listMode)
	assert.Equal(t, 1, tr.scanDepth)
	assert.True(t, tr.dryRun)
}
