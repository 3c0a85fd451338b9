// File: internal/triage/triage.go
package triage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/xkilldash9x/marketpilot/api/schemas"
	"github.com/xkilldash9x/marketpilot/internal/catalog"
	"github.com/xkilldash9x/marketpilot/internal/config"
	"github.com/xkilldash9x/marketpilot/internal/reply"
	"github.com/xkilldash9x/marketpilot/internal/threadstate"
	"go.uber.org/zap"
)

// ThreadStore is the per-thread memory consulted by a pass.
type ThreadStore interface {
	GetOrCreate(threadID string) threadstate.State
	SetBuyerName(threadID, name string) error
	MarkSeen(threadID, messageText string) error
	MarkReplied(threadID, messageText string) error
	HasNewMessage(threadID, messageText string) bool
	NeedsReply(threadID, messageText string) bool
	SetItemID(threadID string, itemID *int) error
}

// Catalog is the item lookup consulted by a pass.
type Catalog interface {
	FindByTitleOverlap(text string) (catalog.Item, bool)
	FindByID(id int) (catalog.Item, bool)
	UpdateStatus(id int, status catalog.Status) error
}

// Outcome says how a pass, or one candidate within it, ended.
type Outcome string

const (
	OutcomeNoCandidates   Outcome = "no_candidates"
	OutcomeOpenFailed     Outcome = "open_failed"
	OutcomeNoMessage      Outcome = "no_message"
	OutcomeNoThreadID     Outcome = "no_thread_id"
	OutcomeAlreadySeen    Outcome = "already_seen"
	OutcomeAlreadyReplied Outcome = "already_replied"
	OutcomeNoReply        Outcome = "no_reply"
	OutcomeDryRun         Outcome = "dry_run"
	OutcomeReplied        Outcome = "replied"
)

// acted reports whether the outcome ends the pass even with scan depth left.
func (o Outcome) acted() bool {
	return o == OutcomeReplied || o == OutcomeDryRun
}

// Result describes one pass.
type Result struct {
	PassID    string
	Outcome   Outcome
	Candidate schemas.Candidate
	// Examined is the number of candidates opened during the pass.
	Examined  int
	ThreadID  string
	BuyerName string
	ItemID    *int
	ItemMatch string
	Intent    reply.Intent
	Reply     string
}

// Triage runs one conversation pass at a time against the inbox.
type Triage struct {
	inbox   schemas.Inbox
	threads ThreadStore
	items   Catalog
	logger  *zap.Logger

	listMode  schemas.ListMode
	scanDepth int
	dryRun    bool
	newPassID func() string
}

// Option configures a Triage.
type Option func(*Triage)

// WithListMode selects which conversations are listed.
func WithListMode(mode schemas.ListMode) Option {
	return func(t *Triage) { t.listMode = mode }
}

// WithScanDepth sets how many candidates a pass may examine before giving up.
// Values below one are treated as one.
func WithScanDepth(n int) Option {
	return func(t *Triage) {
		if n < 1 {
			n = 1
		}
		t.scanDepth = n
	}
}

// WithDryRun computes replies without sending them or writing any state.
func WithDryRun(enabled bool) Option {
	return func(t *Triage) { t.dryRun = enabled }
}

// FromConfig maps the triage configuration section to options.
func FromConfig(cfg config.TriageConfig) []Option {
	mode, err := schemas.ParseListMode(cfg.ListMode)
	if err != nil {
		mode = schemas.ListModeMarketplace
	}
	return []Option{WithListMode(mode), WithScanDepth(cfg.ScanDepth), WithDryRun(cfg.DryRun)}
}

// New creates a Triage over the given collaborators.
func New(inbox schemas.Inbox, threads ThreadStore, items Catalog, logger *zap.Logger, opts ...Option) *Triage {
	t := &Triage{
		inbox:     inbox,
		threads:   threads,
		items:     items,
		logger:    logger.Named("triage"),
		listMode:  schemas.ListModeMarketplace,
		scanDepth: 1,
		newPassID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RunPass performs one triage pass. It returns an error only for failures the
// caller should see: inbox failures other than a missing element, state or
// catalog write failures, and send failures. Everything else is an Outcome.
func (t *Triage) RunPass(ctx context.Context) (Result, error) {
	res := Result{PassID: t.newPassID()}
	log := t.logger.With(zap.String("pass_id", res.PassID))

	candidates, err := t.inbox.ListConversations(ctx, t.listMode)
	if err != nil && !errors.Is(err, schemas.ErrElementNotFound) {
		return res, fmt.Errorf("failed to list conversations: %w", err)
	}
	candidates = Prioritize(candidates)
	if len(candidates) == 0 {
		res.Outcome = OutcomeNoCandidates
		log.Info("No conversations found.")
		return res, nil
	}
	log.Debug("Listed conversations.", zap.Int("count", len(candidates)), zap.Bool("first_unread", candidates[0].Unread))

	limit := t.scanDepth
	if limit > len(candidates) {
		limit = len(candidates)
	}
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		attempt := Result{PassID: res.PassID, Candidate: candidates[i], Examined: i + 1}
		err := t.processCandidate(ctx, log.With(zap.Int("candidate", i)), &attempt)
		res = attempt
		if err != nil || res.Outcome.acted() {
			return res, err
		}
	}
	return res, nil
}

func (t *Triage) processCandidate(ctx context.Context, log *zap.Logger, res *Result) error {
	if err := t.inbox.OpenConversation(ctx, res.Candidate); err != nil {
		if errors.Is(err, schemas.ErrElementNotFound) {
			res.Outcome = OutcomeOpenFailed
			log.Warn("Could not open conversation.", zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to open conversation: %w", err)
	}

	text, err := t.inbox.ReadLastMessage(ctx)
	if err != nil && !errors.Is(err, schemas.ErrElementNotFound) {
		return fmt.Errorf("failed to read last message: %w", err)
	}
	if text == "" {
		res.Outcome = OutcomeNoMessage
		log.Info("No message text in conversation.")
		return nil
	}

	meta, err := t.inbox.ReadThreadMetadata(ctx)
	if err != nil && !errors.Is(err, schemas.ErrElementNotFound) {
		return fmt.Errorf("failed to read thread metadata: %w", err)
	}
	if meta.ThreadID == "" && res.Candidate.Trackable() {
		meta.ThreadID = res.Candidate.Handle
	}
	if meta.ThreadID == "" {
		res.Outcome = OutcomeNoThreadID
		log.Warn("Conversation has no thread id; it cannot be tracked.")
		return nil
	}
	res.ThreadID = meta.ThreadID
	log = log.With(zap.String("thread_id", meta.ThreadID))

	state := t.threads.GetOrCreate(meta.ThreadID)
	res.BuyerName = state.BuyerName
	if meta.BuyerName != "" && meta.BuyerName != state.BuyerName {
		res.BuyerName = meta.BuyerName
		if !t.dryRun {
			if err := t.threads.SetBuyerName(meta.ThreadID, meta.BuyerName); err != nil {
				return fmt.Errorf("failed to record buyer name: %w", err)
			}
		}
		log.Info("Learned buyer name.", zap.String("buyer", meta.BuyerName))
	}

	if !t.threads.HasNewMessage(meta.ThreadID, text) {
		res.Outcome = OutcomeAlreadySeen
		log.Debug("Last message already seen.")
		return nil
	}
	if !t.threads.NeedsReply(meta.ThreadID, text) {
		// The thread went back to a message that was already answered.
		res.Outcome = OutcomeAlreadyReplied
		if !t.dryRun {
			if err := t.threads.MarkSeen(meta.ThreadID, text); err != nil {
				return fmt.Errorf("failed to mark message seen: %w", err)
			}
		}
		log.Info("Last message was already replied to.")
		return nil
	}

	item, matchedBy := t.matchItem(meta, text, state)
	var itemPtr *catalog.Item
	if matchedBy != "" {
		itemPtr = &item
		id := item.ID
		res.ItemID = &id
		res.ItemMatch = matchedBy
		log = log.With(zap.Int("item_id", item.ID))
		log.Info("Matched catalog item.", zap.String("title", item.Title), zap.String("matched_by", matchedBy))
		if !t.dryRun {
			if err := t.items.UpdateStatus(item.ID, catalog.StatusInConversation); err != nil {
				return fmt.Errorf("failed to update item status: %w", err)
			}
			if err := t.threads.SetItemID(meta.ThreadID, &id); err != nil {
				return fmt.Errorf("failed to associate item: %w", err)
			}
		}
	}

	answer, ok := reply.Infer(text, itemPtr)
	if !ok {
		res.Outcome = OutcomeNoReply
		if !t.dryRun {
			if err := t.threads.MarkSeen(meta.ThreadID, text); err != nil {
				return fmt.Errorf("failed to mark message seen: %w", err)
			}
		}
		log.Info("No reply for message.")
		return nil
	}
	res.Intent = answer.Intent
	res.Reply = answer.Text

	if t.dryRun {
		res.Outcome = OutcomeDryRun
		log.Info("Dry run: reply not sent.", zap.String("intent", string(answer.Intent)), zap.String("reply", answer.Text))
		return nil
	}

	if err := t.inbox.TypeAndSend(ctx, answer.Text); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	// A crash between the send above and this commit means the same message
	// is answered again on the next pass.
	if err := t.threads.MarkReplied(meta.ThreadID, text); err != nil {
		return fmt.Errorf("reply sent but not recorded: %w", err)
	}
	res.Outcome = OutcomeReplied
	log.Info("Replied to buyer.", zap.String("intent", string(answer.Intent)))
	return nil
}

// matchItem tries the conversation header first, then the message text, then
// the item already associated with the thread. matchedBy is empty when
// nothing matched.
func (t *Triage) matchItem(meta schemas.ThreadMetadata, text string, state threadstate.State) (item catalog.Item, matchedBy string) {
	if meta.ItemTitleHint != "" {
		if item, ok := t.items.FindByTitleOverlap(meta.ItemTitleHint); ok {
			return item, "header"
		}
	}
	if item, ok := t.items.FindByTitleOverlap(text); ok {
		return item, "message"
	}
	if state.ItemID != nil {
		if item, ok := t.items.FindByID(*state.ItemID); ok {
			return item, "thread"
		}
	}
	return catalog.Item{}, ""
}

// Prioritize returns candidates with unread ones first, keeping the relative
// order within the unread and read groups.
func Prioritize(candidates []schemas.Candidate) []schemas.Candidate {
	out := append([]schemas.Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Unread && !out[j].Unread
	})
	return out
}
