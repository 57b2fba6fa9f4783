// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package genstream provides streams that carry a final summary value in
// addition to their items.
//
// A Stream is produced incrementally by a goroutine and consumed with
// Next. Once the consumer has drained the stream, Final returns the
// producer's summary value. This is the backbone of the issue pipeline:
// every stage emits issues incrementally and reports its debug info only
// once the stage has finished.
//
// # Thread Safety
//
// A Stream supports one concurrent consumer. Multiplex is the supported
// way to combine streams across goroutines.
package genstream

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrNotExhausted is returned by Final when the consumer has not yet
// drained the stream.
var ErrNotExhausted = errors.New("genstream: final value requested before stream exhausted")

// ErrStreamClosed is the error a pending yield observes after Close.
// Producers should return it unchanged so the goroutine unwinds.
var ErrStreamClosed = errors.New("genstream: stream closed")

// Producer generates items by calling yield and returns a final summary
// value once iteration is complete.
//
// yield blocks until the consumer is ready for the item (or the stream is
// closed), giving natural backpressure. A non-nil error from yield means
// the consumer is gone; the producer must stop and return that error.
type Producer[T, R any] func(yield func(T) error) (R, error)

// Stream is an iterator over T with a final value of type R.
//
// # Description
//
// Items are pulled with Next until it reports false. Err then reports any
// producer failure, and Final returns the summary value. Calling Final
// before exhaustion is a usage error and returns ErrNotExhausted.
type Stream[T, R any] struct {
	items  chan T
	closed chan struct{}
	done   chan struct{}

	closeOnce sync.Once

	mu        sync.Mutex
	final     R
	err       error
	exhausted bool
}

// New starts produce in its own goroutine and returns the stream it feeds.
//
// The producer goroutine exits when produce returns, which happens either
// after natural completion or after the consumer calls Close.
func New[T, R any](produce Producer[T, R]) *Stream[T, R] {
	s := &Stream[T, R]{
		items:  make(chan T),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}

	yield := func(item T) error {
		select {
		case s.items <- item:
			return nil
		case <-s.closed:
			return ErrStreamClosed
		}
	}

	go func() {
		defer close(s.done)
		final, err := produce(yield)
		s.mu.Lock()
		s.final = final
		s.err = err
		s.mu.Unlock()
		close(s.items)
	}()

	return s
}

// Next returns the next item. ok is false once the stream is exhausted;
// check Err afterwards to distinguish completion from failure.
func (s *Stream[T, R]) Next() (item T, ok bool) {
	item, ok = <-s.items
	if !ok {
		s.mu.Lock()
		s.exhausted = true
		s.mu.Unlock()
	}
	return item, ok
}

// Err reports the producer's error, if any. Meaningful once Next has
// reported false.
func (s *Stream[T, R]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Final returns the producer's summary value.
//
// # Outputs
//
//   - R: the summary value produced after the last item
//   - error: ErrNotExhausted when called early, or the producer's error
func (s *Stream[T, R]) Final() (R, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero R
	if !s.exhausted {
		return zero, ErrNotExhausted
	}
	if s.err != nil {
		return zero, s.err
	}
	return s.final, nil
}

// Close abandons iteration. The producer's pending yield observes
// ErrStreamClosed and unwinds; Close blocks until the goroutine exits.
// Closing an exhausted stream is a no-op. Safe to call multiple times.
func (s *Stream[T, R]) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		for range s.items {
		}
		<-s.done
		s.mu.Lock()
		s.exhausted = true
		s.mu.Unlock()
	})
}

// Collect drains the stream into a slice and returns it with the final
// value. Convenience for stages that need everything in memory anyway.
func Collect[T, R any](s *Stream[T, R]) ([]T, R, error) {
	var items []T
	for {
		item, ok := s.Next()
		if !ok {
			break
		}
		items = append(items, item)
	}
	final, err := s.Final()
	if err != nil {
		var zero R
		return nil, zero, err
	}
	return items, final, nil
}

// FromSlice returns a stream that yields the given items and finishes
// with the given final value. Used at stage boundaries where a drained
// result must be re-exposed as a stream.
func FromSlice[T, R any](items []T, final R) *Stream[T, R] {
	return New(func(yield func(T) error) (R, error) {
		for _, item := range items {
			if err := yield(item); err != nil {
				var zero R
				return zero, err
			}
		}
		return final, nil
	})
}

// Multiplex interleaves N streams into one.
//
// # Description
//
// Items appear in completion order across the inputs; each input's items
// keep their relative order. The multiplexed stream's final value holds
// the inputs' final values index-aligned with the streams argument,
// regardless of drain order. The first producer error aborts the whole
// multiplex and propagates.
//
// # Inputs
//
//   - streams: the input streams; drained to exhaustion on success
//   - maxWorkers: concurrent drain limit; <= 0 means one worker per stream
func Multiplex[T, R any](streams []*Stream[T, R], maxWorkers int) *Stream[T, []R] {
	if maxWorkers <= 0 || maxWorkers > len(streams) {
		maxWorkers = len(streams)
	}

	return New(func(yield func(T) error) ([]R, error) {
		finals := make([]R, len(streams))
		g := new(errgroup.Group)
		g.SetLimit(maxWorkers)

		for i, st := range streams {
			i, st := i, st
			g.Go(func() error {
				defer st.Close()
				for {
					item, ok := st.Next()
					if !ok {
						break
					}
					if err := yield(item); err != nil {
						return err
					}
				}
				final, err := st.Final()
				if err != nil {
					return fmt.Errorf("multiplex input %d: %w", i, err)
				}
				finals[i] = final
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
		return finals, nil
	})
}
