// Package advice turns a user's ledger into a prompt for a generative-language model
// and reports what came back.
package advice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
)

const DefaultTimeout = 30 * time.Second

// ErrTimeout is carried by a Result whose generator call ran out of time.
var ErrTimeout = errors.New("advice request timed out")

// EntryLister is the read access the summarizer needs from the ledger.
type EntryLister interface {
	List(ctx context.Context, ownerID string, kind ledger.Kind) ([]*ledger.Entry, error)
}

// Generator produces text for a prompt. Implementations must honor ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Image struct {
	MIMEType string
	Data     []byte
}

type Request struct {
	Prompt string
	Image  *Image
}

type Outcome string

const (
	OutcomeAdvice   Outcome = "advice"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed_out"
)

// Result is the tagged outcome of one generator call. Text is only set for OutcomeAdvice.
type Result struct {
	Outcome Outcome
	Text    string
	Err     error
	Prompt  string
}

func (r *Result) OK() bool {
	return r.Outcome == OutcomeAdvice
}

type Summarizer struct {
	entries EntryLister
	gen     Generator
	timeout time.Duration
	log     *slog.Logger
}

type Option func(*Summarizer)

func WithTimeout(d time.Duration) Option {
	return func(s *Summarizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Summarizer) {
		s.log = l
	}
}

func NewSummarizer(entries EntryLister, gen Generator, opts ...Option) *Summarizer {
	s := &Summarizer{
		entries: entries,
		gen:     gen,
		timeout: DefaultTimeout,
		log:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Summarize asks the generator for advice on the owner's whole ledger.
// Inactive entries are included; the active flag only matters for the balance.
func (s *Summarizer) Summarize(ctx context.Context, ownerID, displayName string) (*Result, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ledger.ErrMissingOwner
	}

	income, err := s.entries.List(ctx, ownerID, ledger.KindIncome)
	if err != nil {
		return nil, fmt.Errorf("listing income: %w", err)
	}

	expense, err := s.entries.List(ctx, ownerID, ledger.KindExpense)
	if err != nil {
		return nil, fmt.Errorf("listing expense: %w", err)
	}

	return s.Ask(ctx, Request{Prompt: BuildPrompt(income, expense, displayName)})
}

// Ask sends a free-form request to the generator under the configured timeout.
func (s *Summarizer) Ask(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" && req.Image == nil {
		return nil, errors.New("empty advice request")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.gen.Generate(callCtx, req)

	// The caller walked away; that is not a generator outcome.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("requesting advice: %w", ctxErr)
	}

	res := &Result{Prompt: req.Prompt}

	switch {
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		res.Outcome = OutcomeTimedOut
		res.Err = ErrTimeout

		s.log.WarnContext(ctx, "advice request timed out", "timeout", s.timeout)
	case err != nil:
		res.Outcome = OutcomeFailed
		res.Err = err

		s.log.WarnContext(ctx, "advice request failed", "error", err)
	default:
		res.Outcome = OutcomeAdvice
		res.Text = text

		s.log.DebugContext(ctx, "advice received", "duration", time.Since(start), "chars", len(text))
	}

	return res, nil
}

// BuildPrompt renders the ledger into the advice prompt.
func BuildPrompt(income, expense []*ledger.Entry, displayName string) string {
	incomeDescs, totalIncome := describe(income)
	expenseDescs, totalExpense := describe(expense)

	return fmt.Sprintf(
		"Incomes: %s (Sum of Income: %s), \n\n Expenses: %s (Sum of Expenses: %s) \n\n I am %s. Give me recommendation about my financial situation.",
		incomeDescs, ledger.FormatAmount(totalIncome),
		expenseDescs, ledger.FormatAmount(totalExpense),
		displayName,
	)
}

func describe(entries []*ledger.Entry) (string, decimal.Decimal) {
	descs := make([]string, 0, len(entries))
	total := decimal.Zero

	for _, e := range entries {
		descs = append(descs, e.Description)
		total = total.Add(e.Amount)
	}

	return strings.Join(descs, ", "), total
}

// Sanitize strips markdown emphasis and normalizes paragraph spacing for display.
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "*", "")
	text = strings.ReplaceAll(text, "\n\n", "\n")

	return strings.ReplaceAll(text, "\n", "\n\n")
}
