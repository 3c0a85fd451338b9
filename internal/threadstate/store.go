// File: internal/threadstate/store.go
package threadstate

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/xkilldash9x/marketpilot/internal/fingerprint"
	"github.com/xkilldash9x/marketpilot/internal/jsonfile"
	"go.uber.org/zap"
)

// State is the triage memory kept for one conversation thread.
type State struct {
	BuyerName       string `json:"buyer_name,omitempty"`
	LastMessageHash string `json:"last_message_hash,omitempty"`
	LastRepliedHash string `json:"last_replied_hash,omitempty"`
	ItemID          *int   `json:"item_id,omitempty"`
}

// Store maps thread ids to their State and persists every change to a JSON
// document. It is the only writer of that document.
type Store struct {
	logger *zap.Logger
	path   string
	now    func() time.Time

	mu      sync.Mutex
	threads map[string]*State
	// dirty is set when an earlier save failed, so the next mutation writes
	// even if it changes nothing itself.
	dirty bool
}

// Open loads the document at path. A missing document yields an empty
// store. A corrupt one is moved aside as "<path>.corrupt-<unix>" and the
// store starts empty. Neither case is an error.
func Open(path string, logger *zap.Logger) *Store {
	s := &Store{
		logger:  logger.Named("threadstate"),
		path:    path,
		now:     time.Now,
		threads: make(map[string]*State),
	}
	s.load()
	return s
}

func (s *Store) load() {
	doc := make(map[string]*State)
	found, err := jsonfile.Load(s.path, &doc)
	switch {
	case !found && err == nil:
		s.logger.Info("No thread state document found, starting empty.", zap.String("path", s.path))
		return
	case errors.Is(err, jsonfile.ErrMalformed):
		moved, qerr := jsonfile.Quarantine(s.path, s.now())
		if qerr != nil {
			s.logger.Warn("Thread state document is corrupt and could not be moved aside.", zap.Error(err), zap.NamedError("quarantine_error", qerr))
		} else {
			s.logger.Warn("Thread state document is corrupt, starting empty.", zap.Error(err), zap.String("moved_to", moved))
		}
		return
	case err != nil:
		s.logger.Warn("Failed to read thread state document, starting empty.", zap.Error(err))
		return
	}

	for id, st := range doc {
		if st == nil {
			st = &State{}
		}
		s.threads[id] = st
	}
	s.logger.Info("Loaded thread state.", zap.String("path", s.path), zap.Int("threads", len(s.threads)))
}

// Path returns the location of the backing document.
func (s *Store) Path() string { return s.path }

// GetOrCreate returns a copy of the state for threadID, creating an empty
// entry if none exists. Creating an entry does not write the document.
func (s *Store) GetOrCreate(threadID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.entry(threadID)
}

// SetBuyerName records the buyer's display name for the thread.
func (s *Store) SetBuyerName(threadID, name string) error {
	return s.update(threadID, func(st *State) bool {
		if st.BuyerName == name {
			return false
		}
		st.BuyerName = name
		return true
	})
}

// MarkSeen sets the last-seen fingerprint to that of messageText.
func (s *Store) MarkSeen(threadID, messageText string) error {
	digest := fingerprint.Of(messageText)
	return s.update(threadID, func(st *State) bool {
		if st.LastMessageHash == digest {
			return false
		}
		st.LastMessageHash = digest
		return true
	})
}

// MarkReplied sets both the last-seen and last-replied fingerprints to that
// of messageText. Replying to a message implies having seen it.
func (s *Store) MarkReplied(threadID, messageText string) error {
	digest := fingerprint.Of(messageText)
	return s.update(threadID, func(st *State) bool {
		if st.LastMessageHash == digest && st.LastRepliedHash == digest {
			return false
		}
		st.LastMessageHash = digest
		st.LastRepliedHash = digest
		return true
	})
}

// SetItemID associates a catalog item with the thread. A nil id clears it.
func (s *Store) SetItemID(threadID string, itemID *int) error {
	return s.update(threadID, func(st *State) bool {
		if sameItem(st.ItemID, itemID) {
			return false
		}
		if itemID == nil {
			st.ItemID = nil
		} else {
			id := *itemID
			st.ItemID = &id
		}
		return true
	})
}

// HasNewMessage reports whether messageText differs from the last message
// seen on the thread. A thread with no recorded message always has a new one.
func (s *Store) HasNewMessage(threadID, messageText string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.threads[threadID]
	if !ok {
		return true
	}
	return !fingerprint.Matches(st.LastMessageHash, messageText)
}

// NeedsReply reports whether messageText differs from the last message that
// was replied to on the thread.
func (s *Store) NeedsReply(threadID, messageText string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.threads[threadID]
	if !ok {
		return true
	}
	return !fingerprint.Matches(st.LastRepliedHash, messageText)
}

// Snapshot returns a deep copy of every thread's state.
func (s *Store) Snapshot() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(s.threads))
	for id, st := range s.threads {
		cp := *st
		if st.ItemID != nil {
			v := *st.ItemID
			cp.ItemID = &v
		}
		out[id] = cp
	}
	return out
}

// ThreadIDs returns the known thread ids in lexical order.
func (s *Store) ThreadIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) entry(threadID string) *State {
	st, ok := s.threads[threadID]
	if !ok {
		st = &State{}
		s.threads[threadID] = st
	}
	return st
}

// update applies mutate under the lock and writes the document if anything
// changed. On a failed write the in-memory change is kept and retried on the
// next mutation.
func (s *Store) update(threadID string, mutate func(*State) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := mutate(s.entry(threadID))
	if !changed && !s.dirty {
		return nil
	}
	if err := jsonfile.WriteAtomic(s.path, s.threads); err != nil {
		s.dirty = true
		s.logger.Error("Failed to persist thread state.", zap.String("thread_id", threadID), zap.Error(err))
		return err
	}
	s.dirty = false
	return nil
}

func sameItem(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
