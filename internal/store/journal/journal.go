// Package journal mirrors every successful store write to Kafka as a JSON
// event, so downstream consumers can replay a simulated world.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	gokafka "github.com/segmentio/kafka-go"

	"github.com/lox/worldsim/internal/store"
)

// Event kinds, used as the message key prefix and the "kind" header.
const (
	KindPerson     = "person"
	KindMarriage   = "marriage"
	KindParentship = "parentship"
	KindFriendship = "friendship"
	KindCompany    = "company"
	KindEmployment = "employment"
	KindRelocation = "relocation"
)

// Writer is the subset of *kafka.Writer the journal needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...gokafka.Message) error
	Close() error
}

// Event is the message payload.
type Event struct {
	Kind   string `json:"kind"`
	Record any    `json:"record"`
}

// Relocation is the record published for a Relocate call.
type Relocation struct {
	Email string    `json:"email"`
	City  string    `json:"city"`
	At    time.Time `json:"at"`
}

// NewWriter returns an asynchronous Kafka writer for topic. WriteMessages
// only queues; completion is called with each delivered batch and its error.
// Messages with the same key land on the same partition so each entity's
// history stays ordered.
func NewWriter(brokers []string, topic string, completion func([]gokafka.Message, error)) *gokafka.Writer {
	return &gokafka.Writer{
		Addr:         gokafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: gokafka.RequireOne,
		Balancer:     &gokafka.Hash{},
		Async:        true,
		Completion:   completion,
		BatchTimeout: 50 * time.Millisecond,
		BatchSize:    1000,
		Compression:  gokafka.Snappy,
	}
}

// Store decorates a store.Store. Reads pass straight through; writes are
// published only after the wrapped store accepts them.
type Store struct {
	store.Store
	w Writer

	mu  sync.Mutex
	err error // first failed delivery
}

var _ store.Store = (*Store)(nil)

// New wraps inner, publishing to w.
func New(inner store.Store, w Writer) *Store {
	return &Store{Store: inner, w: w}
}

// Open wraps inner, publishing to topic through an asynchronous writer. A
// failed delivery is returned by the next write and by Close.
func Open(inner store.Store, brokers []string, topic string) *Store {
	s := &Store{Store: inner}
	s.w = NewWriter(brokers, topic, s.delivered)
	return s
}

// delivered records the first delivery failure reported by the writer.
func (s *Store) delivered(msgs []gokafka.Message, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = fmt.Errorf("deliver %d events: %w", len(msgs), err)
	}
}

// Err returns the first delivery failure, if any.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Store) InsertPerson(ctx context.Context, p store.Person) error {
	if err := s.Store.InsertPerson(ctx, p); err != nil {
		return err
	}
	return s.publish(ctx, KindPerson, p.Email, p)
}

func (s *Store) InsertMarriage(ctx context.Context, m store.Marriage) error {
	if err := s.Store.InsertMarriage(ctx, m); err != nil {
		return err
	}
	return s.publish(ctx, KindMarriage, m.ID, m)
}

func (s *Store) InsertParentship(ctx context.Context, p store.Parentship) error {
	if err := s.Store.InsertParentship(ctx, p); err != nil {
		return err
	}
	return s.publish(ctx, KindParentship, p.ChildEmail, p)
}

// InsertFriendship publishes only friendships the wrapped store had not seen.
func (s *Store) InsertFriendship(ctx context.Context, f store.Friendship) (bool, error) {
	stored, err := s.Store.InsertFriendship(ctx, f)
	if err != nil || !stored {
		return stored, err
	}
	return true, s.publish(ctx, KindFriendship, f.Email+"/"+f.FriendEmail, f)
}

func (s *Store) InsertCompany(ctx context.Context, c store.Company) error {
	if err := s.Store.InsertCompany(ctx, c); err != nil {
		return err
	}
	return s.publish(ctx, KindCompany, c.Name, c)
}

func (s *Store) InsertEmployment(ctx context.Context, e store.Employment) error {
	if err := s.Store.InsertEmployment(ctx, e); err != nil {
		return err
	}
	return s.publish(ctx, KindEmployment, e.Email, e)
}

func (s *Store) Relocate(ctx context.Context, email, city string, at time.Time) error {
	if err := s.Store.Relocate(ctx, email, city, at); err != nil {
		return err
	}
	return s.publish(ctx, KindRelocation, email, Relocation{Email: email, City: city, At: at})
}

// Close closes the writer, flushing pending messages, then the wrapped store.
func (s *Store) Close() error {
	var errs []error
	if err := s.w.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close journal writer: %w", err))
	}
	if err := s.Err(); err != nil {
		errs = append(errs, err)
	}
	if err := s.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Store) publish(ctx context.Context, kind, id string, record any) error {
	if err := s.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(Event{Kind: kind, Record: record})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", kind, err)
	}
	msg := gokafka.Message{
		Key:     []byte(kind + "/" + id),
		Value:   value,
		Headers: []gokafka.Header{{Key: "kind", Value: []byte(kind)}},
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s %s: %w", kind, id, err)
	}
	return nil
}
