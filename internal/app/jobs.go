/**
 * @description
 * Scheduled job implementations: the invoice reminder scan and the lottery
 * pool reconcile check.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/offmylawn101/invoicenow/internal/domain"
	"github.com/offmylawn101/invoicenow/internal/store"
	"github.com/offmylawn101/invoicenow/pkg/rabbitmq"
)

// ReminderOptions tunes the reminder scan.
type ReminderOptions struct {
	// BackoffHours is the minimum gap between reminders for one invoice.
	BackoffHours int
	// MaxCount stops chasing an invoice after this many reminders.
	MaxCount int
	// LeadHours widens the scan to invoices coming due within this window;
	// zero means only overdue invoices are chased.
	LeadHours int
	// BatchLimit caps one scan's result set.
	BatchLimit int
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo      store.Repository
	publisher rabbitmq.Publisher
	logger    *slog.Logger
	reminder  ReminderOptions
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo store.Repository, publisher rabbitmq.Publisher, logger *slog.Logger, reminder ReminderOptions) *Jobs {
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{}
	}
	if reminder.BatchLimit <= 0 {
		reminder.BatchLimit = 500
	}
	return &Jobs{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		reminder:  reminder,
	}
}

// ScanReminders finds pending invoices worth chasing and publishes a
// reminder.due event for each. Delivery is owned by a downstream notifier;
// this job only decides who gets chased and records that it happened.
func (j *Jobs) ScanReminders() {
	j.logger.Info("starting invoice reminder scan")
	ctx := context.Background()
	now := time.Now().UTC()

	invoices, err := j.repo.FindReminderDueInvoices(ctx, store.ReminderScanOptions{
		DueBefore:          now.Add(time.Duration(j.reminder.LeadHours) * time.Hour).Unix(),
		LastReminderBefore: now.Add(-time.Duration(j.reminder.BackoffHours) * time.Hour),
		MaxReminders:       j.reminder.MaxCount,
		Limit:              j.reminder.BatchLimit,
	})
	if err != nil {
		j.logger.Error("failed to scan for reminder-due invoices", "error", err)
		return
	}
	if len(invoices) == 0 {
		j.logger.Info("no invoices due for a reminder")
		return
	}

	j.logger.Info("found invoices due for a reminder", "count", len(invoices))

	for _, inv := range invoices {
		event := domain.ReminderDueEvent{
			InvoiceID:     inv.ID,
			CreatorWallet: inv.CreatorWallet,
			ClientEmail:   inv.ClientEmail,
			Amount:        inv.Amount,
			TokenMint:     inv.TokenMint,
			DueDate:       inv.DueDate,
			PaymentLink:   inv.PaymentLink,
			ReminderCount: inv.ReminderCount + 1,
			Timestamp:     now,
		}
		if err := j.publisher.Publish(ctx, rabbitmq.KeyInvoiceReminderDue, event); err != nil {
			j.logger.Error("failed to publish reminder event", "invoice_id", inv.ID, "error", err)
			continue
		}
		if err := j.repo.RecordInvoiceReminder(ctx, inv.ID); err != nil {
			j.logger.Error("failed to record reminder", "invoice_id", inv.ID, "error", err)
			continue
		}
		j.logger.Info("reminder published", "invoice_id", inv.ID, "reminder_count", inv.ReminderCount+1)
	}

	j.logger.Info("invoice reminder scan finished")
}

// ReconcilePools cross-checks every pool's balance against its recorded
// entry activity and pauses any pool whose balance has gone negative. A
// negative balance means settlements have overdrawn the pool and further
// entries must stop until an operator intervenes.
func (j *Jobs) ReconcilePools() {
	j.logger.Info("starting lottery pool reconcile")
	ctx := context.Background()

	pools, err := j.repo.ListLotteryPools(ctx)
	if err != nil {
		j.logger.Error("failed to list lottery pools", "error", err)
		return
	}

	for _, pool := range pools {
		credits, payouts, err := j.repo.LotteryPoolActivity(ctx, pool.TokenMint)
		if err != nil {
			j.logger.Error("failed to sum pool activity", "token_mint", pool.TokenMint, "error", err)
			continue
		}

		// Seeded funds make the balance exceed net activity; it must never
		// fall below it.
		net := credits - payouts
		if pool.Balance < net {
			j.logger.Warn("pool balance below recorded activity",
				"token_mint", pool.TokenMint, "balance", pool.Balance, "credits", credits, "payouts", payouts)
		}

		if pool.Balance < 0 && !pool.Paused {
			j.logger.Error("pool balance negative; pausing pool", "token_mint", pool.TokenMint, "balance", pool.Balance)
			if _, err := j.repo.SetLotteryPoolPaused(ctx, pool.TokenMint, true); err != nil {
				j.logger.Error("failed to pause pool", "token_mint", pool.TokenMint, "error", err)
			}
		}
	}

	j.logger.Info("lottery pool reconcile finished", "pools", len(pools))
}
