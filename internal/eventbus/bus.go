// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package eventbus implements the typed pub/sub substrate from spec
// §4.B. It keeps the subscribe/publish vocabulary and the
// sync.Mutex-guarded subscription bookkeeping of the teacher's
// pkg/nats.Client (Subscribe(subject, handler) / Publish(subject, data)),
// but drops the wire encoding: handlers here receive the concrete Go
// event value directly, because every subscriber lives in this process.
package eventbus

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/allenjin-login/usbthief/pkg/log"
)

var eventType = reflect.TypeOf((*Event)(nil)).Elem()

type handlerEntry struct {
	id uint64
	fn func(Event)
}

type resultEntry struct {
	id uint64
	fn func(Event) any
}

// Bus dispatches typed events to subscribers, synchronously on the
// caller's goroutine or asynchronously on freshly spawned goroutines.
// A single Bus instance is meant to be constructed once and passed by
// reference to every component that needs it (spec §9: replace global
// mutable singletons with an explicitly constructed, passed-by-reference
// context).
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]handlerEntry
	results  map[reflect.Type][]resultEntry
	catchAll []handlerEntry
	nextID   uint64
}

func New() *Bus {
	return &Bus{
		handlers: make(map[reflect.Type][]handlerEntry),
		results:  make(map[reflect.Type][]resultEntry),
	}
}

// Subscription identifies a registered handler so it can later be
// removed with Unsubscribe.
type Subscription struct {
	typ reflect.Type
	id  uint64
	all bool
}

// Subscribe registers handler for the concrete event type T. Subscribing
// with T = Event (the base interface) receives every event published on
// this bus, per spec §4.B.
func Subscribe[T Event](b *Bus, handler func(T)) Subscription {
	id := atomic.AddUint64(&b.nextID, 1)
	wrapped := func(e Event) { handler(e.(T)) }

	var zero T
	t := reflect.TypeOf(zero)
	if t == nil || t == eventType {
		b.mu.Lock()
		b.catchAll = append(b.catchAll, handlerEntry{id: id, fn: wrapped})
		b.mu.Unlock()
		return Subscription{id: id, all: true}
	}

	b.mu.Lock()
	b.handlers[t] = append(b.handlers[t], handlerEntry{id: id, fn: wrapped})
	b.mu.Unlock()
	return Subscription{typ: t, id: id}
}

// SubscribeResult registers a handler whose return value is collected by
// PublishAsyncCollect. Result handlers are not invoked by PublishSync or
// PublishAsync.
func SubscribeResult[T Event, R any](b *Bus, handler func(T) R) Subscription {
	id := atomic.AddUint64(&b.nextID, 1)
	wrapped := func(e Event) any { return handler(e.(T)) }

	var zero T
	t := reflect.TypeOf(zero)
	b.mu.Lock()
	b.results[t] = append(b.results[t], resultEntry{id: id, fn: wrapped})
	b.mu.Unlock()
	return Subscription{typ: t, id: id}
}

// Unsubscribe removes a previously registered handler. No event is
// delivered to it after this call returns (spec §4.B ordering
// guarantee), because removal happens under the same lock dispatch
// snapshots are taken under.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.all {
		b.catchAll = removeHandler(b.catchAll, sub.id)
		return
	}
	if list, ok := b.handlers[sub.typ]; ok {
		b.handlers[sub.typ] = removeHandler(list, sub.id)
	}
	if list, ok := b.results[sub.typ]; ok {
		b.results[sub.typ] = removeResult(list, sub.id)
	}
}

func removeHandler(list []handlerEntry, id uint64) []handlerEntry {
	out := make([]handlerEntry, 0, len(list))
	for _, e := range list {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}

func removeResult(list []resultEntry, id uint64) []resultEntry {
	out := make([]resultEntry, 0, len(list))
	for _, e := range list {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}

func (b *Bus) snapshot(e Event) []handlerEntry {
	t := reflect.TypeOf(e)
	b.mu.RLock()
	defer b.mu.RUnlock()

	typed := b.handlers[t]
	out := make([]handlerEntry, 0, len(typed)+len(b.catchAll))
	// Merge by subscription id so typed and catch-all handlers run in
	// the order they were registered.
	i, j := 0, 0
	for i < len(typed) || j < len(b.catchAll) {
		if j == len(b.catchAll) || (i < len(typed) && typed[i].id < b.catchAll[j].id) {
			out = append(out, typed[i])
			i++
		} else {
			out = append(out, b.catchAll[j])
			j++
		}
	}
	return out
}

// PublishSync invokes every matching handler on the caller's goroutine,
// in registration order. A handler that panics is isolated: the bus
// recovers it, logs it, and continues with the remaining handlers; the
// call itself never propagates the failure (spec §4.B, §7).
func (b *Bus) PublishSync(e Event) {
	for _, h := range b.snapshot(e) {
		invoke(h.fn, e)
	}
}

func invoke(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("eventbus: handler panicked on %T: %v", e, r)
		}
	}()
	fn(e)
}

// Completion fires once every handler scheduled by PublishAsync has
// terminated, success or failure.
type Completion struct {
	wg   sync.WaitGroup
	done chan struct{}
}

// Wait blocks until every scheduled handler has returned.
func (c *Completion) Wait() {
	<-c.done
}

// PublishAsync schedules each matching handler on its own goroutine and
// returns a Completion that fires when all of them have terminated.
// Handlers are still isolated from each other's panics.
func (b *Bus) PublishAsync(e Event) *Completion {
	handlers := b.snapshot(e)
	c := &Completion{done: make(chan struct{})}
	c.wg.Add(len(handlers))

	for _, h := range handlers {
		h := h
		go func() {
			defer c.wg.Done()
			invoke(h.fn, e)
		}()
	}

	go func() {
		c.wg.Wait()
		close(c.done)
	}()

	return c
}

// PublishAsyncCollect schedules every result handler registered for e's
// concrete type, waits for all of them, and returns their results keyed
// by subscription id.
func (b *Bus) PublishAsyncCollect(e Event) map[uint64]any {
	t := reflect.TypeOf(e)
	b.mu.RLock()
	handlers := make([]resultEntry, len(b.results[t]))
	copy(handlers, b.results[t])
	b.mu.RUnlock()

	results := make(map[uint64]any, len(handlers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(handlers))

	for _, h := range handlers {
		h := h
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("eventbus: result handler panicked on %T: %v", e, r)
				}
			}()
			v := h.fn(e)
			mu.Lock()
			results[h.id] = v
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results
}
