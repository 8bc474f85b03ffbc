package stream

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

type fakeCheckpointStore struct {
	tokens  map[string]bson.Raw
	deleted []string
}

func newFakeCheckpointStore() *fakeCheckpointStore {
	return &fakeCheckpointStore{tokens: map[string]bson.Raw{}}
}

func (s *fakeCheckpointStore) GetCheckpoint(key string) (bson.Raw, error) {
	return s.tokens[key], nil
}

func (s *fakeCheckpointStore) SaveCheckpoint(key string, token bson.Raw) error {
	s.tokens[key] = token
	return nil
}

func (s *fakeCheckpointStore) Delete(key string) error {
	delete(s.tokens, key)
	s.deleted = append(s.deleted, key)
	return nil
}

// minimal store without deletion support
type readOnlyCheckpointStore struct{}

func (readOnlyCheckpointStore) GetCheckpoint(key string) (bson.Raw, error)  { return nil, nil }
func (readOnlyCheckpointStore) SaveCheckpoint(key string, t bson.Raw) error { return nil }

func TestClearCheckpointUsesDeleter(t *testing.T) {
	store := newFakeCheckpointStore()
	store.tokens["events_projection"] = bson.Raw([]byte{0x01})

	w := &Watcher{
		name:            "events",
		config:          &StreamConfig{CheckpointKey: "events_projection"},
		checkpointStore: store,
	}

	w.clearCheckpoint()

	if len(store.deleted) != 1 || store.deleted[0] != "events_projection" {
		t.Errorf("deleted keys = %v, want [events_projection]", store.deleted)
	}
	if _, ok := store.tokens["events_projection"]; ok {
		t.Error("token still present after clearCheckpoint")
	}
}

func TestClearCheckpointWithoutDeleterIsNoop(t *testing.T) {
	w := &Watcher{
		name:            "events",
		config:          &StreamConfig{CheckpointKey: "events_projection"},
		checkpointStore: readOnlyCheckpointStore{},
	}

	// Must not panic on a store that cannot delete
	w.clearCheckpoint()
}

func TestWithCheckpointStoreReplacesDefault(t *testing.T) {
	store := newFakeCheckpointStore()
	p := &Processor{config: DefaultProcessorConfig()}
	p.WithCheckpointStore(store)

	if p.checkpointStore != CheckpointStore(store) {
		t.Error("checkpoint store not replaced")
	}
}

func TestIsStaleResumeTokenError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("ChangeStreamHistoryLost: resume point no longer in oplog"), true},
		{errors.New("invalid resume token"), true},
		{errors.New("connection reset by peer"), false},
	}
	for _, tc := range cases {
		if got := isStaleResumeTokenError(tc.err); got != tc.want {
			t.Errorf("isStaleResumeTokenError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
