// Package worker hosts background jobs that keep derived reports fresh.
package worker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/ports"
)

// Publisher sends report invalidations.
type Publisher interface {
	PublishInvalidation(ctx context.Context, msg *amqp.ReportInvalidation) error
}

// PriceWatcher polls quotes for every held symbol and publishes an
// invalidation for each account whose quotes moved since the last poll.
type PriceWatcher struct {
	holdings  ports.HoldingLister
	prices    ports.PriceSource
	publisher Publisher
	interval  time.Duration
	logger    *log.Logger

	// last fingerprint per account; nil until the first poll completes
	seen map[string]string
}

func NewPriceWatcher(holdings ports.HoldingLister, prices ports.PriceSource, publisher Publisher, interval time.Duration, logger *log.Logger) *PriceWatcher {
	if logger == nil {
		logger = log.Discard()
	}
	return &PriceWatcher{
		holdings:  holdings,
		prices:    prices,
		publisher: publisher,
		interval:  interval,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// Run polls until ctx is cancelled. Poll errors are logged and retried on the
// next tick.
func (w *PriceWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "Price watcher started", "interval", w.interval.String())
	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "Price poll failed", log.FieldError, err)
		}
		select {
		case <-ctx.Done():
			w.logger.Info("Price watcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs one cycle and returns the accounts that were invalidated. The
// first cycle only records a baseline.
func (w *PriceWatcher) Poll(ctx context.Context) ([]string, error) {
	start := time.Now()
	holdings, err := w.holdings.ListHoldings(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}

	symbolsByAccount := make(map[string][]string)
	var all []string
	seenSymbol := make(map[string]bool)
	for _, h := range holdings {
		sym := h.LookupSymbol()
		symbolsByAccount[h.AccountID] = append(symbolsByAccount[h.AccountID], sym)
		if !seenSymbol[sym] {
			seenSymbol[sym] = true
			all = append(all, sym)
		}
	}

	quotes := map[string]core.Quote{}
	if len(all) > 0 {
		quotes, err = w.prices.LoadPrices(ctx, all)
		if err != nil {
			return nil, fmt.Errorf("load prices: %w", err)
		}
	}

	current := make(map[string]string, len(symbolsByAccount))
	for accountID, symbols := range symbolsByAccount {
		current[accountID] = fingerprint(symbols, quotes)
	}

	baseline := w.seen == nil
	var changed []string
	if !baseline {
		for accountID, fp := range current {
			if w.seen[accountID] != fp {
				changed = append(changed, accountID)
			}
		}
		// accounts whose last holding disappeared
		for accountID := range w.seen {
			if _, ok := current[accountID]; !ok {
				changed = append(changed, accountID)
			}
		}
		sort.Strings(changed)
	}

	var published []string
	for _, accountID := range changed {
		msg := amqp.NewReportInvalidation(accountID, amqp.ReasonPricesChanged, dedupe(symbolsByAccount[accountID])...)
		if err := w.publisher.PublishInvalidation(ctx, msg); err != nil {
			// keep the old fingerprint so the next poll retries
			current[accountID] = w.seen[accountID]
			w.logger.ErrorContext(ctx, "Failed to publish invalidation", log.NewFields().
				WithAccount(accountID).
				WithError(err).
				ToSlice()...)
			continue
		}
		published = append(published, accountID)
	}
	w.seen = current

	w.logger.DebugContext(ctx, "Price poll completed", log.NewFields().
		WithOperation(log.OpPrices).
		WithCount(len(all)).
		WithDuration(time.Since(start)).
		ToSlice()...)
	if len(published) > 0 {
		w.logger.InfoContext(ctx, "Published report invalidations", "accounts", published)
	}
	return published, nil
}

// fingerprint is a stable text form of the quotes an account depends on.
// Missing quotes and staleness are part of it.
func fingerprint(symbols []string, quotes map[string]core.Quote) string {
	symbols = dedupe(symbols)
	var b strings.Builder
	for _, sym := range symbols {
		b.WriteString(sym)
		b.WriteByte('=')
		if q, ok := quotes[sym]; ok {
			b.WriteString(q.Price.String())
			if q.IsStale {
				b.WriteString("~")
			}
		} else {
			b.WriteByte('-')
		}
		b.WriteByte(';')
	}
	return b.String()
}

func dedupe(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
