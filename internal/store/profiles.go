// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/authwatch/internal/event"
	"github.com/tomtom215/authwatch/internal/history"
	"github.com/tomtom215/authwatch/internal/logging"
	"github.com/tomtom215/authwatch/internal/model"
)

// Ensure interface compliance.
var _ history.Repository = (*Store)(nil)

// profileHead is everything about a profile except its events.
type profileHead struct {
	UserID     string      `json:"user_id"`
	Set        history.Set `json:"set"`
	EventCount int         `json:"event_count"`
	Model      model.State `json:"model"`
}

type headVersion struct {
	seq  uint64
	head profileHead
}

func versionedKey(prefix, userID string, seq uint64) []byte {
	return []byte(prefix + userID + ":" + fmt.Sprintf("%016x", seq))
}

// parseVersionedKey splits prefix<user>:<seq>. User ids may contain ':'.
func parseVersionedKey(key []byte, prefix string) (userID string, seq uint64, ok bool) {
	rest, found := strings.CutPrefix(string(key), prefix)
	if !found {
		return "", 0, false
	}
	i := strings.LastIndexByte(rest, ':')
	if i < 0 {
		return "", 0, false
	}
	seq, err := strconv.ParseUint(rest[i+1:], 16, 64)
	if err != nil {
		return "", 0, false
	}
	return rest[:i], seq, true
}

// committedSeq returns the last committed save sequence, 0 for a new store.
func committedSeq(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get([]byte(keyProfileSeq))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var seq uint64
	if err := item.Value(func(val []byte) error {
		var perr error
		seq, perr = strconv.ParseUint(string(val), 10, 64)
		return perr
	}); err != nil {
		return 0, fmt.Errorf("decode %s: %w", keyProfileSeq, err)
	}
	return seq, nil
}

// latestHeads returns the newest committed head of every user whose id
// starts with userPrefix.
func latestHeads(ctx context.Context, txn *badger.Txn, committed uint64, userPrefix string) (map[string]*headVersion, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	heads := make(map[string]*headVersion)
	prefix := []byte(prefixHead + userPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := it.Item()
		id, seq, ok := parseVersionedKey(item.Key(), prefixHead)
		if !ok || seq > committed {
			continue
		}
		if cur, ok := heads[id]; ok && cur.seq >= seq {
			continue
		}
		hv := &headVersion{seq: seq}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &hv.head)
		}); err != nil {
			return nil, fmt.Errorf("decode %s: %w", item.Key(), err)
		}
		hv.head.Model.Normalize()
		heads[id] = hv
	}
	return heads, nil
}

// scanEvents calls fn with every committed event chunk of users whose id
// starts with userPrefix. Chunks of one user arrive in save order.
func scanEvents(ctx context.Context, txn *badger.Txn, committed uint64, userPrefix string, fn func(userID string, chunk []event.Event)) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := []byte(prefixEvents + userPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := it.Item()
		id, seq, ok := parseVersionedKey(item.Key(), prefixEvents)
		if !ok || seq > committed {
			continue
		}
		var chunk []event.Event
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &chunk)
		}); err != nil {
			return fmt.Errorf("decode %s: %w", item.Key(), err)
		}
		fn(id, chunk)
	}
	return nil
}

// assemble joins heads with their events and checks the counts agree.
func assemble(heads map[string]*headVersion, events map[string][]event.Event) (map[string]*history.Profile, error) {
	profiles := make(map[string]*history.Profile, len(heads))
	for id, hv := range heads {
		evs := events[id]
		if len(evs) != hv.head.EventCount {
			return nil, fmt.Errorf("profile %s: %d events stored, head records %d", id, len(evs), hv.head.EventCount)
		}
		profiles[id] = &history.Profile{UserID: id, Events: evs, Model: hv.head.Model}
	}
	return profiles, nil
}

// Load reads every committed profile. A new store yields an empty state.
//
// DETERMINISM: Load runs in a single View transaction, so the result is a
// consistent snapshot.
func (s *Store) Load(ctx context.Context) (st *history.State, err error) {
	start := time.Now()
	defer func() { observe("load", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	st = history.NewState(s.config.MinEvents)
	err = s.db.View(func(txn *badger.Txn) error {
		committed, err := committedSeq(txn)
		if err != nil {
			return err
		}
		heads, err := latestHeads(ctx, txn, committed, "")
		if err != nil {
			return err
		}
		events := make(map[string][]event.Event, len(heads))
		if err := scanEvents(ctx, txn, committed, "", func(id string, chunk []event.Event) {
			if _, ok := heads[id]; ok {
				events[id] = append(events[id], chunk...)
			}
		}); err != nil {
			return err
		}
		profiles, err := assemble(heads, events)
		if err != nil {
			return err
		}
		for id, p := range profiles {
			st.Put(heads[id].head.Set, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	trained, deferred := st.Counts()
	logging.Ctx(ctx).Debug().
		Int("trained", trained).
		Int("deferred", deferred).
		Msg("History loaded")
	return st, nil
}

// Save persists the profiles changed since Load. Each changed profile gets
// a new head and one chunk holding only its new events, so the work is
// proportional to the batch, not to the accumulated history.
//
// Versions are written with a WriteBatch, which has no transaction size
// limit, and become visible only when the sequence marker is committed
// last. A failed save leaves the previous state intact; its versions are
// ignored by readers and removed by the next save.
func (s *Store) Save(ctx context.Context, st *history.State) (err error) {
	start := time.Now()
	defer func() { observe("save", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	changes := st.Changes()
	if len(changes) == 0 {
		return nil
	}

	var committed uint64
	if err := s.db.View(func(txn *badger.Txn) error {
		var cerr error
		committed, cerr = committedSeq(txn)
		return cerr
	}); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	if err := s.purgeUncommitted(ctx, committed); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}

	seq := committed + 1
	if err := s.writeVersions(ctx, changes, seq); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}

	// Commit point.
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyProfileSeq), []byte(strconv.FormatUint(seq, 10)))
	}); err != nil {
		return fmt.Errorf("save profiles: commit: %w", err)
	}
	st.MarkSaved()

	if err := s.pruneHeads(ctx, changes, seq); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to prune superseded profile heads")
	}

	logging.Ctx(ctx).Debug().
		Uint64("seq", seq).
		Int("profiles", len(changes)).
		Msg("History saved")
	return nil
}

func (s *Store) writeVersions(ctx context.Context, changes []history.Change, seq uint64) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := c.Profile.UserID
		if len(c.NewEvents) > 0 {
			data, err := json.Marshal(c.NewEvents)
			if err != nil {
				return fmt.Errorf("marshal events of %s: %w", id, err)
			}
			if err := wb.SetEntry(badger.NewEntry(versionedKey(prefixEvents, id, seq), data)); err != nil {
				return fmt.Errorf("write events of %s: %w", id, err)
			}
		}
		data, err := json.Marshal(profileHead{
			UserID:     id,
			Set:        c.Set,
			EventCount: len(c.Profile.Events),
			Model:      c.Profile.Model,
		})
		if err != nil {
			return fmt.Errorf("marshal profile %s: %w", id, err)
		}
		if err := wb.SetEntry(badger.NewEntry(versionedKey(prefixHead, id, seq), data)); err != nil {
			return fmt.Errorf("write profile %s: %w", id, err)
		}
	}
	return wb.Flush()
}

// purgeUncommitted deletes versions left by an interrupted save, so the
// next sequence starts clean.
func (s *Store) purgeUncommitted(ctx context.Context, committed uint64) error {
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, prefix := range []string{prefixHead, prefixEvents} {
			p := []byte(prefix)
			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				if _, seq, ok := parseVersionedKey(it.Item().Key(), prefix); ok && seq > committed {
					stale = append(stale, it.Item().KeyCopy(nil))
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	logging.Ctx(ctx).Warn().
		Int("keys", len(stale)).
		Uint64("committed_seq", committed).
		Msg("Removing versions of an interrupted save")
	return deleteKeys(s.db, stale)
}

// pruneHeads deletes head versions superseded by seq.
func (s *Store) pruneHeads(ctx context.Context, changes []history.Change, seq uint64) error {
	var old [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, c := range changes {
			if err := ctx.Err(); err != nil {
				return err
			}
			p := []byte(prefixHead + c.Profile.UserID + ":")
			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				id, v, ok := parseVersionedKey(it.Item().Key(), prefixHead)
				if ok && id == c.Profile.UserID && v < seq {
					old = append(old, it.Item().KeyCopy(nil))
				}
			}
		}
		return nil
	})
	if err != nil || len(old) == 0 {
		return err
	}
	return deleteKeys(s.db, old)
}

func deleteKeys(db *badger.DB, keys [][]byte) error {
	wb := db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return wb.Flush()
}

// ProfileSummary is a lightweight view of a stored profile.
type ProfileSummary struct {
	UserID     string      `json:"user_id"`
	Set        history.Set `json:"set"`
	EventCount int         `json:"event_count"`
	ModelKind  string      `json:"model_kind"`
	FittedAt   *time.Time  `json:"fitted_at,omitempty"`
}

func summarize(h *profileHead) ProfileSummary {
	sum := ProfileSummary{
		UserID:     h.UserID,
		Set:        h.Set,
		EventCount: h.EventCount,
		ModelKind:  string(h.Model.Kind),
	}
	if h.Model.Fitted() {
		t := h.Model.FittedAt
		sum.FittedAt = &t
	}
	return sum
}

// committedHeads reads the newest committed head of every profile.
func (s *Store) committedHeads(ctx context.Context) (map[string]*headVersion, error) {
	var heads map[string]*headVersion
	err := s.db.View(func(txn *badger.Txn) error {
		committed, err := committedSeq(txn)
		if err != nil {
			return err
		}
		heads, err = latestHeads(ctx, txn, committed, "")
		return err
	})
	return heads, err
}

// ListProfiles returns summaries ordered by set (trained first) then user
// id, skipping offset entries and returning at most limit. total is the
// number of profiles in the store. Events are not read.
func (s *Store) ListProfiles(ctx context.Context, limit, offset int) (items []ProfileSummary, total int, err error) {
	start := time.Now()
	defer func() { observe("list", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, 0, err
	}

	heads, err := s.committedHeads(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list profiles: %w", err)
	}

	all := make([]*profileHead, 0, len(heads))
	for _, hv := range heads {
		all = append(all, &hv.head)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Set != all[j].Set {
			return all[i].Set == history.SetTrained
		}
		return all[i].UserID < all[j].UserID
	})

	for i := offset; i < len(all) && (limit <= 0 || len(items) < limit); i++ {
		items = append(items, summarize(all[i]))
	}
	return items, len(all), nil
}

// GetProfile returns one profile and the set holding it.
func (s *Store) GetProfile(ctx context.Context, userID string) (p *history.Profile, set history.Set, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, ErrNotFound) {
			observe("get_profile", start, nil)
			return
		}
		observe("get_profile", start, err)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, "", err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		committed, err := committedSeq(txn)
		if err != nil {
			return err
		}
		// The prefix also matches ids that extend userID; keep the exact one.
		heads, err := latestHeads(ctx, txn, committed, userID+":")
		if err != nil {
			return err
		}
		hv, ok := heads[userID]
		if !ok {
			return ErrNotFound
		}
		var events []event.Event
		if err := scanEvents(ctx, txn, committed, userID+":", func(id string, chunk []event.Event) {
			if id == userID {
				events = append(events, chunk...)
			}
		}); err != nil {
			return err
		}
		profiles, err := assemble(map[string]*headVersion{userID: hv}, map[string][]event.Event{userID: events})
		if err != nil {
			return err
		}
		p, set = profiles[userID], hv.head.Set
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return p, set, nil
}

// CountProfiles returns the number of trained and deferred profiles.
// Events are not read.
func (s *Store) CountProfiles(ctx context.Context) (trained, deferred int, err error) {
	start := time.Now()
	defer func() { observe("count", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, 0, err
	}

	heads, err := s.committedHeads(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("count profiles: %w", err)
	}
	for _, hv := range heads {
		if hv.head.Set == history.SetTrained {
			trained++
		} else {
			deferred++
		}
	}
	return trained, deferred, nil
}
