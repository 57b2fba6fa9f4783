// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/AleutianAI/vet/pkg/logging"
)

// DollarLimitError means an authorization can never fit under the hard
// cap given what has already been spent. It is fatal for the run.
type DollarLimitError struct {
	RequestedDollars float64
	SpentDollars     float64
	LimitDollars     float64
}

func (e *DollarLimitError) Error() string {
	return fmt.Sprintf("llm: spend limit exceeded: requested $%.4f with $%.4f already spent of $%.2f limit",
		e.RequestedDollars, e.SpentDollars, e.LimitDollars)
}

// SpendLimiter enforces a hard dollar cap across concurrent model calls
// using an authorize/settle reservation ledger.
//
// # Description
//
// Callers authorize an estimated cost before a request and settle the
// actual cost afterwards. Authorization blocks while outstanding
// reservations would push the total over the cap, and fails with
// *DollarLimitError once settled spend alone makes the request
// impossible.
//
// # Thread Safety
//
// Safe for concurrent use.
type SpendLimiter struct {
	mu   sync.Mutex
	cond *sync.Cond

	limitDollars    float64
	warnAtFraction  float64
	spentDollars    float64
	reservedDollars float64
	warned          bool

	logger *logging.Logger
}

// NewSpendLimiter creates a limiter with the given hard cap. A
// non-positive cap disables limiting.
func NewSpendLimiter(limitDollars float64, logger *logging.Logger) *SpendLimiter {
	if logger == nil {
		logger = logging.Default()
	}
	l := &SpendLimiter{
		limitDollars:   limitDollars,
		warnAtFraction: 0.8,
		logger:         logger,
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Authorize reserves estimatedDollars of budget, blocking while other
// reservations are outstanding. Returns *DollarLimitError when settled
// spend plus the request exceeds the cap regardless of how outstanding
// reservations settle, or the context error if ctx ends while waiting.
func (l *SpendLimiter) Authorize(ctx context.Context, estimatedDollars float64) error {
	if l == nil || l.limitDollars <= 0 {
		return nil
	}

	// Wake the cond wait when the context ends.
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		if l.spentDollars+estimatedDollars > l.limitDollars {
			return &DollarLimitError{
				RequestedDollars: estimatedDollars,
				SpentDollars:     l.spentDollars,
				LimitDollars:     l.limitDollars,
			}
		}
		if l.spentDollars+l.reservedDollars+estimatedDollars <= l.limitDollars {
			l.reservedDollars += estimatedDollars
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}
}

// Settle replaces the reservation made by Authorize with the actual
// cost and wakes blocked authorizations.
func (l *SpendLimiter) Settle(authorizedDollars, actualDollars float64) {
	if l == nil || l.limitDollars <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reservedDollars -= authorizedDollars
	if l.reservedDollars < 0 {
		l.reservedDollars = 0
	}
	l.spentDollars += actualDollars
	if !l.warned && l.spentDollars >= l.limitDollars*l.warnAtFraction {
		l.warned = true
		l.logger.Warn("approaching spend limit",
			"spent_dollars", l.spentDollars, "limit_dollars", l.limitDollars)
	}
	l.cond.Broadcast()
}

// SpentDollars returns the settled spend so far.
func (l *SpendLimiter) SpentDollars() float64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spentDollars
}

// =============================================================================
// Spend-limited client
// =============================================================================

// limitedClient wraps a Client with a SpendLimiter.
type limitedClient struct {
	inner   Client
	limiter *SpendLimiter
	counter TokenCounter
}

// NewSpendLimitedClient wraps inner so every completion authorizes an
// estimated cost before the request and settles the provider-reported
// cost afterwards. counter defaults to ApproxTokenCounter.
func NewSpendLimitedClient(inner Client, limiter *SpendLimiter, counter TokenCounter) Client {
	if counter == nil {
		counter = ApproxTokenCounter
	}
	return &limitedClient{inner: inner, limiter: limiter, counter: counter}
}

func (c *limitedClient) Model() string { return c.inner.Model() }

func (c *limitedClient) CompleteWithUsage(ctx context.Context, prompt string, params GenerationParams, cachingEnabled bool) (*Completion, error) {
	estimate := c.estimateCost(prompt, params)
	if err := c.limiter.Authorize(ctx, estimate); err != nil {
		return nil, err
	}

	completion, err := c.inner.CompleteWithUsage(ctx, prompt, params, cachingEnabled)
	if err != nil {
		c.limiter.Settle(estimate, 0)
		return nil, err
	}
	c.limiter.Settle(estimate, completion.Usage.CostDollars)
	return completion, nil
}

func (c *limitedClient) estimateCost(prompt string, params GenerationParams) float64 {
	pricing, ok := PricingFor(c.inner.Model())
	if !ok {
		return 0
	}
	maxOutput := 4096
	if params.MaxTokens != nil {
		maxOutput = *params.MaxTokens
	}
	return pricing.Cost(Usage{
		InputTokens:  c.counter(prompt),
		OutputTokens: maxOutput,
	})
}

var _ Client = (*limitedClient)(nil)
