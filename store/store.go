// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

var (
	ErrExists     = errors.New("document already exists")
	ErrContention = errors.New("transaction contention: retries exhausted")
)

// DefaultMaxRetries bounds how often a conflicting transaction is re-run.
const DefaultMaxRetries = 25

// Collection groups documents of one kind.
type Collection string

const (
	Locations   Collection = "h"
	Profiles    Collection = "u"
	Stats       Collection = "s"
	Audit       Collection = "e"
	Submissions Collection = "t"
	Outbox      Collection = "p"
	DeadLetters Collection = "f"
	Backups     Collection = "b"
)

// Key addresses one document.
type Key struct {
	Collection Collection
	ID         string
}

func (k Key) String() string {
	return string(k.Collection) + "/" + k.ID
}

func LocationKey(id string) Key  { return Key{Locations, id} }
func ProfileKey(uid string) Key  { return Key{Profiles, uid} }
func StatsKey(uid string) Key    { return Key{Stats, uid} }
func AuditKey(id string) Key     { return Key{Audit, id} }
func OutboxKey(id string) Key    { return Key{Outbox, id} }
func DeadLetterKey(id string) Key { return Key{DeadLetters, id} }

// SubmissionKey is stationID/imageID so a station's submissions share a prefix.
func SubmissionKey(stationID, imageID string) Key {
	return Key{Submissions, stationID + "/" + imageID}
}

// Txn is the view a transaction body gets of the store. Bodies may be run
// more than once and must not have side effects outside the Txn.
type Txn interface {
	// Get decodes the document into v and reports whether it existed.
	Get(key Key, v any) (bool, error)
	// Put creates or replaces the document.
	Put(key Key, v any) error
	// Create writes the document only if it does not exist yet, and
	// returns ErrExists otherwise.
	Create(key Key, v any) error
	Delete(key Key) error
	// List calls fn for every document of c whose id starts with prefix,
	// in id order.
	List(c Collection, prefix string, fn func(id string, data []byte) error) error
}

// Store runs transactions against the document store. Update retries the
// body when it conflicts with a concurrent writer.
type Store interface {
	Update(ctx context.Context, fn func(Txn) error) error
	View(ctx context.Context, fn func(Txn) error) error
	Close() error
}

// Decode is the counterpart of the encoding used by Put.
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

// backoff sleeps a little longer on every attempt, with jitter so that
// colliding writers spread out.
func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(attempt+1)*2*time.Millisecond + time.Duration(rand.IntN(3000))*time.Microsecond
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
