package journal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	gokafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/worldsim/internal/store"
	"github.com/lox/worldsim/internal/store/memory"
	"github.com/lox/worldsim/internal/store/storetest"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []gokafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...gokafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) kinds() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var kinds []string
	for _, m := range w.messages {
		var e Event
		if err := json.Unmarshal(m.Value, &e); err == nil {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

func TestJournalConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New(memory.New(), &fakeWriter{})
	})
}

func TestJournalPublishesSuccessfulWrites(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{}
	s := New(memory.New(), w)

	born := time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertPerson(ctx, store.Person{Email: "w@x", Gender: store.Female, BirthCity: "Paris", BirthDate: born}))
	require.NoError(t, s.InsertPerson(ctx, store.Person{Email: "m@x", Gender: store.Male, BirthCity: "Paris", BirthDate: born}))
	require.NoError(t, s.InsertMarriage(ctx, store.Marriage{ID: "m1", WifeEmail: "w@x", HusbandEmail: "m@x", City: "Paris"}))
	stored, err := s.InsertFriendship(ctx, store.Friendship{Email: "w@x", FriendEmail: "m@x"})
	require.NoError(t, err)
	assert.True(t, stored)
	require.NoError(t, s.Relocate(ctx, "w@x", "Lyon", born.AddDate(20, 0, 0)))

	// Rejected writes are not published.
	assert.Error(t, s.InsertPerson(ctx, store.Person{Email: "w@x"}))
	assert.Error(t, s.Relocate(ctx, "ghost@x", "Lyon", born))

	assert.Equal(t, []string{KindPerson, KindPerson, KindMarriage, KindFriendship, KindRelocation}, w.kinds())

	first := w.messages[0]
	assert.Equal(t, "person/w@x", string(first.Key))
	require.Len(t, first.Headers, 1)
	assert.Equal(t, "kind", first.Headers[0].Key)
	assert.Equal(t, KindPerson, string(first.Headers[0].Value))

	var payload struct {
		Kind   string       `json:"kind"`
		Record store.Person `json:"record"`
	}
	require.NoError(t, json.Unmarshal(first.Value, &payload))
	assert.Equal(t, "w@x", payload.Record.Email)
	assert.Equal(t, "Paris", payload.Record.BirthCity)

	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

func TestJournalPublishFailure(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	w := &fakeWriter{err: errors.New("broker down")}
	s := New(inner, w)

	err := s.InsertPerson(ctx, store.Person{Email: "a@x", BirthCity: "Paris"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	// The wrapped store keeps the record; the journal only reports the gap.
	residents, err := inner.Residents(ctx, "Paris")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x"}, residents)
}

func TestJournalSkipsDuplicateFriendships(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{}
	s := New(memory.New(), w)

	born := time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertPerson(ctx, store.Person{Email: "a@x", BirthCity: "Paris", BirthDate: born}))
	require.NoError(t, s.InsertPerson(ctx, store.Person{Email: "b@x", BirthCity: "Paris", BirthDate: born}))

	f := store.Friendship{Email: "a@x", FriendEmail: "b@x"}
	stored, err := s.InsertFriendship(ctx, f)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = s.InsertFriendship(ctx, f)
	require.NoError(t, err)
	assert.False(t, stored)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Friendships)
	assert.Equal(t, []string{KindPerson, KindPerson, KindFriendship}, w.kinds())
	assert.Equal(t, "friendship/a@x/b@x", string(w.messages[2].Key))
}

func TestJournalReportsFailedDelivery(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{}
	s := New(memory.New(), w)

	require.NoError(t, s.InsertPerson(ctx, store.Person{Email: "a@x", BirthCity: "Paris"}))
	assert.NoError(t, s.Err())

	s.delivered(w.messages, nil)
	assert.NoError(t, s.Err())

	s.delivered(w.messages, errors.New("leader not available"))
	s.delivered(w.messages, errors.New("second failure"))
	require.Error(t, s.Err())
	assert.Contains(t, s.Err().Error(), "leader not available")

	err := s.InsertPerson(ctx, store.Person{Email: "b@x", BirthCity: "Paris"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Len(t, w.messages, 1, "nothing more is queued after a failure")

	err = s.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.True(t, w.closed)
}

func TestOpenUsesAsyncWriter(t *testing.T) {
	s := Open(memory.New(), []string{"localhost:9092"}, "worldsim")

	w, ok := s.w.(*gokafka.Writer)
	require.True(t, ok)
	assert.True(t, w.Async)
	assert.NotNil(t, w.Completion)
	assert.Equal(t, "worldsim", w.Topic)
	assert.Equal(t, "localhost:9092", w.Addr.String())

	// Nothing was queued, so closing never dials the broker.
	require.NoError(t, s.Close())
}
