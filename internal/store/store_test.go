// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/authwatch/internal/event"
	"github.com/tomtom215/authwatch/internal/history"
	"github.com/tomtom215/authwatch/internal/model"
)

// setupTestStore creates an in-memory store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true, MinEvents: 3})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func events(user, name string, n int) []event.Event {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	out := make([]event.Event, n)
	for i := range out {
		out[i] = event.Event{
			UserID:    user,
			Username:  name,
			EventType: "LOGIN_SUCCESS",
			Time:      base.Add(time.Duration(i) * time.Minute),
			TimeValid: true,
		}
	}
	return out
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLoad_EmptyStore(t *testing.T) {
	s := setupTestStore(t)

	st, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	trained, deferred := st.Counts()
	if trained != 0 || deferred != 0 {
		t.Errorf("Counts() = (%d, %d), want (0, 0)", trained, deferred)
	}
	if st.MinEvents() != 3 {
		t.Errorf("MinEvents() = %d, want 3", st.MinEvents())
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	st := history.NewState(3)
	st.Merge("u1", events("u1", "alice7", 4))
	st.Merge("u2", events("u2", "bob", 1))
	st.Trained["u1"].Model = model.State{Kind: model.KindTrained, EventCount: 4, FittedAt: time.Now().UTC()}

	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	p, set, ok := loaded.Lookup("u1")
	if !ok || set != history.SetTrained {
		t.Fatalf("Lookup(u1) = (_, %q, %v), want trained", set, ok)
	}
	if len(p.Events) != 4 {
		t.Errorf("len(Events) = %d, want 4", len(p.Events))
	}
	if p.Model.Kind != model.KindTrained {
		t.Errorf("Model.Kind = %q, want trained", p.Model.Kind)
	}

	p, set, ok = loaded.Lookup("u2")
	if !ok || set != history.SetDeferred {
		t.Fatalf("Lookup(u2) = (_, %q, %v), want deferred", set, ok)
	}
	if p.Model.Kind != model.KindAbsent {
		t.Errorf("deferred Model.Kind = %q, want absent", p.Model.Kind)
	}
}

// headKeys returns the stored head versions of userID.
func headKeys(t *testing.T, s *Store, userID string) []uint64 {
	t.Helper()
	var seqs []uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefixHead + userID + ":")
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if id, seq, ok := parseVersionedKey(it.Item().Key(), prefixHead); ok && id == userID {
				seqs = append(seqs, seq)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scan heads: %v", err)
	}
	return seqs
}

func TestSave_PromotionMovesProfile(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	st := history.NewState(3)
	st.Merge("u1", events("u1", "carol", 2))
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	st, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res := st.Merge("u1", events("u1", "carol", 1)); !res.Promoted {
		t.Fatalf("expected promotion, got %+v", res)
	}
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	trained, deferred, err := s.CountProfiles(ctx)
	if err != nil {
		t.Fatalf("CountProfiles() error = %v", err)
	}
	if trained != 1 || deferred != 0 {
		t.Errorf("CountProfiles() = (%d, %d), want (1, 0)", trained, deferred)
	}
	if seqs := headKeys(t, s, "u1"); len(seqs) != 1 || seqs[0] != 2 {
		t.Errorf("head versions of u1 = %v, want [2]", seqs)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	p, set, ok := loaded.Lookup("u1")
	if !ok || set != history.SetTrained || len(p.Events) != 3 {
		t.Errorf("Lookup(u1) = (%v, %q, %v), want trained with 3 events", p, set, ok)
	}
}

func TestSave_WritesOnlyChangedProfiles(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	st := history.NewState(3)
	st.Merge("u1", events("u1", "a", 3))
	st.Merge("u2", events("u2", "b", 3))
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	st, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	st.Merge("u1", events("u1", "a", 2))
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if seqs := headKeys(t, s, "u1"); len(seqs) != 1 || seqs[0] != 2 {
		t.Errorf("head versions of u1 = %v, want [2]", seqs)
	}
	if seqs := headKeys(t, s, "u2"); len(seqs) != 1 || seqs[0] != 1 {
		t.Errorf("head versions of u2 = %v, want [1] (untouched)", seqs)
	}

	// A save with nothing changed writes nothing.
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if seqs := headKeys(t, s, "u1"); len(seqs) != 1 || seqs[0] != 2 {
		t.Errorf("head versions of u1 after no-op save = %v, want [2]", seqs)
	}

	p, _, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if len(p.Events) != 5 {
		t.Errorf("len(Events) = %d, want 5", len(p.Events))
	}
}

func TestSave_InterruptedVersionsIgnored(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	st := history.NewState(3)
	st.Merge("u1", events("u1", "a", 1))
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Versions of a save that never wrote its sequence marker.
	head, err := json.Marshal(profileHead{UserID: "ghost", Set: history.SetDeferred, EventCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	chunk, err := json.Marshal(events("ghost", "g", 1))
	if err != nil {
		t.Fatal(err)
	}
	extra, err := json.Marshal(events("u1", "a", 4))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		for key, val := range map[string][]byte{
			string(versionedKey(prefixHead, "ghost", 2)):   head,
			string(versionedKey(prefixEvents, "ghost", 2)): chunk,
			string(versionedKey(prefixEvents, "u1", 2)):    extra,
		} {
			if err := txn.Set([]byte(key), val); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, _, ok := loaded.Lookup("ghost"); ok {
		t.Error("uncommitted profile visible after Load")
	}
	if p, _, _ := loaded.Lookup("u1"); p == nil || len(p.Events) != 1 {
		t.Fatalf("u1 = %+v, want 1 committed event", p)
	}

	// The next save reuses sequence 2 and must not adopt the leftovers.
	loaded.Merge("u2", events("u2", "b", 1))
	if err := s.Save(ctx, loaded); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	final, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, _, ok := final.Lookup("ghost"); ok {
		t.Error("leftover profile adopted by the next save")
	}
	if p, _, _ := final.Lookup("u1"); p == nil || len(p.Events) != 1 {
		t.Errorf("u1 = %+v, want 1 event", p)
	}
	if _, _, ok := final.Lookup("u2"); !ok {
		t.Error("u2 missing after save")
	}
}

func TestSave_HistoryLargerThanTxnLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large history test in short mode")
	}

	s, err := Open(Config{Path: t.TempDir(), MinEvents: 3})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	const (
		users   = 2000
		perRun  = 10
		runs    = 4
		wantLen = perRun * runs
	)
	for run := 1; run <= runs; run++ {
		st, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("run %d: Load() error = %v", run, err)
		}
		for u := 0; u < users; u++ {
			id := fmt.Sprintf("user%04d", u)
			res := st.Merge(id, events(id, id, perRun))
			res.Profile.Model = model.State{Kind: model.KindTrained, EventCount: len(res.Profile.Events), FittedAt: time.Now().UTC()}
		}
		if err := s.Save(ctx, st); err != nil {
			t.Fatalf("run %d (%d total events): Save() error = %v", run, run*users*perRun, err)
		}
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	trained, deferred := loaded.Counts()
	if trained != users || deferred != 0 {
		t.Errorf("Counts() = (%d, %d), want (%d, 0)", trained, deferred, users)
	}
	for _, id := range []string{"user0000", "user0221", "user1999"} {
		p, _, ok := loaded.Lookup(id)
		if !ok {
			t.Errorf("%s missing after Load", id)
			continue
		}
		if len(p.Events) != wantLen {
			t.Errorf("%s events = %d, want %d", id, len(p.Events), wantLen)
		}
	}
}

func TestSave_CanceledContextWritesNothing(t *testing.T) {
	s := setupTestStore(t)

	st := history.NewState(3)
	st.Merge("u1", events("u1", "dave", 5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Save(ctx, st); err == nil {
		t.Fatal("expected error for canceled context")
	}

	loaded, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if trained, _ := loaded.Counts(); trained != 0 {
		t.Errorf("trained = %d after failed save, want 0", trained)
	}
}

func TestListProfiles_Pagination(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	st := history.NewState(3)
	st.Merge("a", events("a", "a", 3))
	st.Merge("b", events("b", "b", 3))
	st.Merge("c", events("c", "c", 1))
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	items, total, err := s.ListProfiles(ctx, 2, 1)
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].UserID != "b" || items[0].Set != history.SetTrained {
		t.Errorf("items[0] = %+v, want trained b", items[0])
	}
	if items[1].UserID != "c" || items[1].Set != history.SetDeferred {
		t.Errorf("items[1] = %+v, want deferred c", items[1])
	}

	trained, deferred, err := s.CountProfiles(ctx)
	if err != nil {
		t.Fatalf("CountProfiles() error = %v", err)
	}
	if trained != 2 || deferred != 1 {
		t.Errorf("CountProfiles() = (%d, %d), want (2, 1)", trained, deferred)
	}
}

func TestGetProfile(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	st := history.NewState(3)
	st.Merge("u9", events("u9", "erin", 1))
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	p, set, err := s.GetProfile(ctx, "u9")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if set != history.SetDeferred || p.UserID != "u9" {
		t.Errorf("GetProfile() = (%s, %q), want (u9, deferred)", p.UserID, set)
	}

	if _, _, err := s.GetProfile(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProfile(missing) error = %v, want ErrNotFound", err)
	}
}

func TestModel_PutGetVersioning(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	name := ModelName("isolation_forest", "auth_v1")

	if _, err := s.GetModel(ctx, name); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetModel() before put error = %v, want ErrNotFound", err)
	}

	data := []byte(`{"trees":3}`)
	meta, err := s.PutModel(ctx, ModelMetadata{Name: name, Detector: "isolation_forest", FeatureSet: "auth_v1", Samples: 10}, data)
	if err != nil {
		t.Fatalf("PutModel() error = %v", err)
	}
	if meta.Version != 1 || meta.Checksum == "" || meta.SizeBytes != int64(len(data)) {
		t.Errorf("metadata = %+v", meta)
	}

	meta, err = s.PutModel(ctx, ModelMetadata{Name: name}, []byte(`{"trees":4}`))
	if err != nil {
		t.Fatalf("PutModel() error = %v", err)
	}
	if meta.Version != 2 {
		t.Errorf("Version = %d, want 2", meta.Version)
	}

	got, err := s.GetModel(ctx, name)
	if err != nil {
		t.Fatalf("GetModel() error = %v", err)
	}
	if string(got.Data) != `{"trees":4}` {
		t.Errorf("Data = %s", got.Data)
	}
}

func TestGetModel_ChecksumMismatch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	name := ModelName("dbscan", "auth_v1")

	tampered, err := json.Marshal(StoredModel{
		Metadata: ModelMetadata{Name: name, Version: 1, Checksum: "deadbeef"},
		Data:     json.RawMessage(`{"eps":1}`),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixModel+name), tampered)
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := s.GetModel(ctx, name); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("GetModel() error = %v, want ErrChecksumMismatch", err)
	}
}

func TestLastRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.LastRun(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LastRun() before put error = %v, want ErrNotFound", err)
	}

	rec := &RunRecord{RunID: "r1", Input: "Mar_01_2024.csv", Events: 12, Anomalies: 2}
	if err := s.PutLastRun(ctx, rec); err != nil {
		t.Fatalf("PutLastRun() error = %v", err)
	}
	got, err := s.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun() error = %v", err)
	}
	if got.RunID != "r1" || got.Anomalies != 2 {
		t.Errorf("LastRun() = %+v", got)
	}
}

func TestClosedStore(t *testing.T) {
	s, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	ctx := context.Background()
	if _, err := s.Load(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Load() error = %v, want ErrClosed", err)
	}
	if err := s.Save(ctx, history.NewState(3)); !errors.Is(err, ErrClosed) {
		t.Errorf("Save() error = %v, want ErrClosed", err)
	}
	if err := s.RunGC(); !errors.Is(err, ErrClosed) {
		t.Errorf("RunGC() error = %v, want ErrClosed", err)
	}
}

func TestRunGC_OnDisk(t *testing.T) {
	s, err := Open(Config{Path: t.TempDir(), Compression: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if err := s.RunGC(); err != nil {
		t.Errorf("RunGC() error = %v", err)
	}
}
