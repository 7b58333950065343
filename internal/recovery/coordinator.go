// Package recovery repairs documents that came back from the provider with
// sections missing or under threshold. It asks for only the gaps, merges the
// answers in without duplicating what already exists, and reports what it
// could and could not fix.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loreforge/loreforge/internal/config"
	"github.com/loreforge/loreforge/internal/myth"
	"github.com/loreforge/loreforge/internal/parse"
	"github.com/loreforge/loreforge/internal/prompt"
	"github.com/loreforge/loreforge/internal/provider"
	"github.com/loreforge/loreforge/internal/validate"
)

// Coordinator drives section-level recovery. One coordinator serves one
// generation; it owns the working document for the duration of Recover.
type Coordinator struct {
	provider   provider.Provider
	limits     config.Limits
	thresholds config.Thresholds
	logger     *slog.Logger
}

func New(p provider.Provider, limits config.Limits, th config.Thresholds, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		provider:   p,
		limits:     limits,
		thresholds: th,
		logger:     logger.With("component", "recovery"),
	}
}

// Recover brings doc toward completeness in place. It returns a status
// describing what was recovered and what remains; a non-nil error is
// returned only for unrecoverable provider failures on the first attempt —
// once anything has been merged, the best-effort document and status are
// returned instead so the caller can choose to accept a partial result.
func (c *Coordinator) Recover(ctx context.Context, req myth.GenerationRequest, doc *myth.PartialMythDocument) (myth.RecoveryStatus, error) {
	report := validate.Completeness(doc, c.thresholds)
	if !report.NeedsRecovery() {
		return myth.RecoveryStatus{Resolved: true}, nil
	}

	var recovered []myth.Section
	for attempt := 1; attempt <= c.limits.MaxRecoveryRetries; attempt++ {
		targets := append(append([]myth.Section{}, report.Missing...), report.Incomplete...)
		c.logger.Info("requesting section recovery",
			"attempt", attempt,
			"max_attempts", c.limits.MaxRecoveryRetries,
			"sections", sectionNames(targets))

		fragment, err := c.regenerate(ctx, req, doc, targets)
		if err != nil {
			if attempt == 1 && len(recovered) == 0 {
				return statusFor(report, recovered), fmt.Errorf("recovery attempt %d: %w", attempt, err)
			}
			c.logger.Warn("recovery attempt failed, keeping best effort", "attempt", attempt, "error", err)
			break
		}
		if fragment == nil || fragment.IsEmpty() {
			c.logger.Warn("recovery response contained no usable sections", "attempt", attempt)
			continue
		}

		doc.Merge(fragment)
		for _, s := range fragment.PresentSections() {
			if containsSection(targets, s) && !containsSection(recovered, s) {
				recovered = append(recovered, s)
			}
		}

		report = validate.Completeness(doc, c.thresholds)
		if !report.NeedsRecovery() {
			break
		}
	}

	status := statusFor(report, recovered)
	c.logger.Info("recovery finished",
		"resolved", status.Resolved,
		"recovered", sectionNames(status.Recovered),
		"still_missing", sectionNames(status.Missing),
		"still_incomplete", sectionNames(status.Incomplete))
	return status, nil
}

// regenerate issues one targeted provider call and parses its response,
// falling back to per-section salvage scoped to the requested sections.
func (c *Coordinator) regenerate(ctx context.Context, req myth.GenerationRequest, doc *myth.PartialMythDocument, targets []myth.Section) (*myth.PartialMythDocument, error) {
	p, err := prompt.Recovery(req, doc, targets)
	if err != nil {
		return nil, err
	}

	text, err := c.provider.Generate(ctx, p, provider.GenerateOptions{
		Temperature:     prompt.TemperatureForMood(req.Mood),
		MaxOutputTokens: c.recoveryBudget(),
	})
	if err != nil {
		// A failed call may still carry a salvageable partial body.
		if partial := provider.PartialText(err); partial != "" {
			text = partial
		} else {
			return nil, err
		}
	}

	fragment, strategy, perr := parse.Document(text)
	if perr != nil {
		return parse.ExtractSections(text, targets), nil
	}
	c.logger.Debug("parsed recovery response", "strategy", strategy.String())
	return fragment, nil
}

// recoveryBudget uses a mid-sequence output budget: targeted regeneration
// never needs the full first-phase allowance.
func (c *Coordinator) recoveryBudget() int {
	budgets := c.limits.OutputTokenBudgets
	if len(budgets) == 0 {
		return 4096
	}
	return budgets[len(budgets)/2]
}

func statusFor(report validate.CompletenessReport, recovered []myth.Section) myth.RecoveryStatus {
	return myth.RecoveryStatus{
		Recovered:  recovered,
		Missing:    report.Missing,
		Incomplete: report.Incomplete,
		Resolved:   !report.NeedsRecovery(),
	}
}

func containsSection(sections []myth.Section, s myth.Section) bool {
	for _, have := range sections {
		if have == s {
			return true
		}
	}
	return false
}

func sectionNames(sections []myth.Section) []string {
	names := make([]string, len(sections))
	for i, s := range sections {
		names[i] = string(s)
	}
	return names
}
