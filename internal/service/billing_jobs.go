package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/cache"
	"github.com/segyhp/rental-billing/internal/domain"
	"github.com/segyhp/rental-billing/internal/logger"
	"github.com/segyhp/rental-billing/internal/metrics"
	"github.com/segyhp/rental-billing/internal/notify"
	"github.com/segyhp/rental-billing/internal/repository"
	customError "github.com/segyhp/rental-billing/pkg/errors"
	"github.com/segyhp/rental-billing/pkg/utils"
)

// Job names, used for locks, failure counters and metrics.
const (
	JobMonthlyInvoices = "monthly_invoices"
	JobOverdueInvoices = "overdue_invoices"
	JobReminders24h    = "reminders_24h"
	JobReminders1h     = "reminders_1h"
	JobLeaseExpiry     = "lease_expiry"
	JobStalePayments   = "stale_payments"
)

const maxInvoiceNumberAttempts = 3

type JobsConfig struct {
	Location          *time.Location
	MaxEntityFailures int
	StaleAfter        time.Duration
	BatchSize         int
}

// JobReport summarizes one run. Failed entities do not abort the run.
type JobReport struct {
	Job       string `json:"job"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// BillingJobs holds the periodic procedures. Every one of them is safe to
// rerun: each entity is re-checked against stored state before it changes.
type BillingJobs struct {
	store      repository.Store
	reconciler *Reconciler
	settings   *SettingsProvider
	failures   cache.FailureTracker
	notifier   notifier
	metrics    *metrics.Recorder
	logger     *zap.Logger
	config     JobsConfig
}

func NewBillingJobs(
	store repository.Store,
	reconciler *Reconciler,
	settings *SettingsProvider,
	failures cache.FailureTracker,
	dispatcher notify.Dispatcher,
	recorder *metrics.Recorder,
	logger *zap.Logger,
	config JobsConfig,
) *BillingJobs {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.MaxEntityFailures <= 0 {
		config.MaxEntityFailures = 3
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = 24 * time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	return &BillingJobs{
		store:      store,
		reconciler: reconciler,
		settings:   settings,
		failures:   failures,
		notifier:   notifier{store: store, dispatcher: dispatcher, logger: logger},
		metrics:    recorder,
		logger:     logger,
		config:     config,
	}
}

// run applies fn to one entity with failure bookkeeping. fn reports whether
// it changed anything.
// run applies fn to one entity and reports whether it was attempted. Entities
// over the failure threshold are skipped without calling fn.
func (j *BillingJobs) run(ctx context.Context, report *JobReport, entity domain.EntityType, id uuid.UUID, fn func() (bool, error)) bool {
	log := logger.FromContext(ctx, j.logger).With(
		zap.String("job", report.Job),
		zap.String("entity_type", string(entity)),
		zap.String("entity_id", id.String()))

	failures, err := j.failures.Failures(ctx, report.Job, id.String())
	if err != nil {
		log.Warn("failure counter unavailable", zap.Error(err))
	}
	if failures >= int64(j.config.MaxEntityFailures) {
		report.Skipped++
		log.Debug("skipping entity flagged for review", zap.Int64("failures", failures))
		return false
	}

	changed, err := fn()
	if err != nil {
		report.Failed++
		log.Error("job entity failed", zap.Error(err))

		count, cerr := j.failures.RecordFailure(ctx, report.Job, id.String())
		if cerr != nil {
			log.Warn("failed to record entity failure", zap.Error(cerr))
			return true
		}
		if count >= int64(j.config.MaxEntityFailures) {
			note := fmt.Sprintf("%s failed %d consecutive runs: %v", report.Job, count, err)
			if aerr := audit(ctx, j.store, domain.AuditFlaggedForReview, entity, id, nil, nil, note, time.Now()); aerr != nil {
				log.Warn("failed to record review flag", zap.Error(aerr))
			}
			log.Error("entity flagged for manual review", zap.Int64("failures", count))
		}
		return true
	}

	if failures > 0 {
		if err := j.failures.Reset(ctx, report.Job, id.String()); err != nil {
			log.Warn("failed to reset entity failures", zap.Error(err))
		}
	}
	if changed {
		report.Processed++
	} else {
		report.Skipped++
	}
	return true
}

func (j *BillingJobs) finish(ctx context.Context, report *JobReport) {
	j.metrics.JobEntities(report.Job, "processed", report.Processed)
	j.metrics.JobEntities(report.Job, "skipped", report.Skipped)
	j.metrics.JobEntities(report.Job, "failed", report.Failed)
	logger.FromContext(ctx, j.logger).Info("job finished",
		zap.String("job", report.Job),
		zap.Int("processed", report.Processed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
}

// GenerateMonthlyInvoices issues the current month's rent invoice for every
// active lease that does not have one yet.
func (j *BillingJobs) GenerateMonthlyInvoices(ctx context.Context, now time.Time) (*JobReport, error) {
	report := &JobReport{Job: JobMonthlyInvoices}

	settings, err := j.settings.Load(ctx)
	if err != nil {
		return report, err
	}
	leases, err := j.store.Leases().ListActive(ctx)
	if err != nil {
		return report, customError.WrapDatabaseError(err)
	}

	for _, lease := range leases {
		lease := lease
		j.run(ctx, report, domain.EntityLease, lease.ID, func() (bool, error) {
			inv, err := createRentInvoice(ctx, j.store, lease, settings, now, j.config.Location)
			if err != nil || inv == nil {
				return false, err
			}
			invoiceGenerated(ctx, j.notifier, inv, settings.Currency, now)
			return true, nil
		})
	}

	j.finish(ctx, report)
	return report, nil
}

// createRentInvoice creates the rent invoice for the month holding now, in
// loc. It returns nil without error when the period is already invoiced or
// the lease has not started by the end of it.
func createRentInvoice(ctx context.Context, store repository.Store, lease *domain.Lease, settings domain.Settings, now time.Time, loc *time.Location) (*domain.Invoice, error) {
	periodStart, periodEnd := domain.MonthPeriod(now.In(loc))
	if lease.StartDate.After(periodEnd) {
		return nil, nil
	}

	for attempt := 0; attempt < maxInvoiceNumberAttempts; attempt++ {
		exists, err := store.Invoices().ExistsForPeriod(ctx, lease.ID, domain.InvoiceTypeRent, periodStart)
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}
		if exists {
			return nil, nil
		}

		inv := newRentInvoice(lease, settings, periodStart, periodEnd, now)
		err = store.WithinTx(ctx, func(tx repository.Store) error {
			if err := tx.Invoices().Create(ctx, inv); err != nil {
				return err
			}
			return audit(ctx, tx, domain.AuditCreated, domain.EntityInvoice, inv.ID, nil, inv, "", now)
		})
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, dbError(err)
		}
		// Either another run invoiced the period or the number collided;
		// the existence check at the top tells which.
	}
	return nil, customError.WrapDatabaseError(fmt.Errorf("could not allocate an invoice number for lease %s", lease.ID))
}

func newRentInvoice(lease *domain.Lease, settings domain.Settings, periodStart, periodEnd, now time.Time) *domain.Invoice {
	return &domain.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: utils.GenerateInvoiceNumber(now),
		LeaseID:       lease.ID,
		TenantID:      lease.TenantID,
		Type:          domain.InvoiceTypeRent,
		Description:   "Rent " + periodStart.Format("January 2006"),
		Amount:        lease.MonthlyRent,
		AmountPaid:    decimal.Zero,
		DueDate:       settings.InvoiceDueDate(now),
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Status:        domain.InvoiceStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func invoiceGenerated(ctx context.Context, n notifier, inv *domain.Invoice, currency string, now time.Time) {
	n.send(ctx, inv.TenantID, func(c domain.Contact) domain.Event {
		e := domain.NewEvent(domain.EventInvoiceGenerated, c, now).
			WithAmount(inv.Amount, currency).
			WithDueDate(inv.DueDate).
			WithPayable(domain.InvoiceRef(inv.ID)).
			WithRole(domain.RoleTenant)
		e.Reference = inv.InvoiceNumber
		return e
	})
}

// MarkOverdueInvoices materializes overdue status for pending invoices past
// their due date and tells both tenant and landlord.
func (j *BillingJobs) MarkOverdueInvoices(ctx context.Context, now time.Time) (*JobReport, error) {
	report := &JobReport{Job: JobOverdueInvoices}

	settings, err := j.settings.Load(ctx)
	if err != nil {
		return report, err
	}

	// Entities skipped by the failure tracker do not use up the batch.
	var cursor repository.Cursor
	for attempted := 0; attempted < j.config.BatchSize; {
		invoices, err := j.store.Invoices().ListPendingDueBefore(ctx, now, cursor, j.config.BatchSize)
		if err != nil {
			return report, customError.WrapDatabaseError(err)
		}

		for _, candidate := range invoices {
			if attempted >= j.config.BatchSize {
				break
			}
			cursor = repository.Cursor{At: candidate.DueDate, ID: candidate.ID}
			id := candidate.ID
			if j.run(ctx, report, domain.EntityInvoice, id, func() (bool, error) {
				var marked *domain.Invoice
				err := j.store.WithinTx(ctx, func(tx repository.Store) error {
					inv, err := tx.Invoices().GetByIDForUpdate(ctx, id)
					if err != nil {
						return dbError(err)
					}
					before := *inv
					if err := inv.MarkOverdue(now); err != nil {
						// Paid or already marked since the listing.
						return nil
					}
					if err := tx.Invoices().Update(ctx, inv); err != nil {
						return customError.WrapDatabaseError(err)
					}
					marked = inv
					return audit(ctx, tx, domain.AuditUpdated, domain.EntityInvoice, inv.ID, before, inv, "overdue", now)
				})
				if err != nil || marked == nil {
					return false, err
				}
				j.notifyOverdue(ctx, marked, settings.Currency, now)
				return true, nil
			}) {
				attempted++
			}
		}
		if len(invoices) < j.config.BatchSize {
			break
		}
	}

	j.finish(ctx, report)
	return report, nil
}

func (j *BillingJobs) notifyOverdue(ctx context.Context, inv *domain.Invoice, currency string, now time.Time) {
	build := func(role string) func(domain.Contact) domain.Event {
		return func(c domain.Contact) domain.Event {
			e := domain.NewEvent(domain.EventInvoiceOverdue, c, now).
				WithAmount(inv.Outstanding(), currency).
				WithDueDate(inv.DueDate).
				WithPayable(domain.InvoiceRef(inv.ID)).
				WithRole(role)
			e.Reference = inv.InvoiceNumber
			return e
		}
	}

	j.notifier.send(ctx, inv.TenantID, build(domain.RoleTenant))

	lease, err := j.store.Leases().GetByID(ctx, inv.LeaseID)
	if err != nil {
		logger.FromContext(ctx, j.logger).Warn("no landlord to notify for overdue invoice",
			zap.String("invoice_id", inv.ID.String()), zap.Error(err))
		return
	}
	j.notifier.send(ctx, lease.LandlordID, build(domain.RoleLandlord))
}

// SendAppointmentReminders notifies clients of confirmed visits whose start
// falls in the kind's window. A reminder recorded within the lookback
// suppresses a resend.
func (j *BillingJobs) SendAppointmentReminders(ctx context.Context, kind domain.ReminderKind, now time.Time) (*JobReport, error) {
	job := JobReminders24h
	if kind == domain.Reminder1h {
		job = JobReminders1h
	}
	report := &JobReport{Job: job}
	if _, err := domain.ParseReminderKind(string(kind)); err != nil {
		return report, customError.WrapValidation(err.Error(), err)
	}

	settings, err := j.settings.Load(ctx)
	if err != nil {
		return report, err
	}
	if !settings.RemindersEnabled {
		logger.FromContext(ctx, j.logger).Debug("reminders disabled", zap.String("job", job))
		return report, nil
	}

	from, to := kind.Window()
	appointments, err := j.store.Appointments().ListConfirmedBetween(ctx, now.Add(from), now.Add(to))
	if err != nil {
		return report, customError.WrapDatabaseError(err)
	}

	for _, appt := range appointments {
		appt := appt
		j.run(ctx, report, domain.EntityAppointment, appt.ID, func() (bool, error) {
			sent, err := j.store.Reminders().SentSince(ctx, appt.ID, kind, now.Add(-kind.Lookback()))
			if err != nil {
				return false, customError.WrapDatabaseError(err)
			}
			if sent {
				return false, nil
			}

			if j.notifier.dispatcher != nil {
				recipient := j.notifier.contact(ctx, appt.ClientID)
				event := domain.NewEvent(domain.EventAppointmentReminder, recipient, now).
					WithPayable(domain.AppointmentRef(appt.ID)).
					WithRole(domain.RoleClient)
				scheduled := appt.ScheduledAt
				event.ScheduledAt = &scheduled
				event.ReminderKind = kind
				if err := j.notifier.dispatcher.Dispatch(ctx, event); err != nil {
					// Not recorded, so the next run inside the window retries.
					return false, fmt.Errorf("dispatch reminder: %w", err)
				}
			}

			err = j.store.WithinTx(ctx, func(tx repository.Store) error {
				if err := tx.Reminders().Record(ctx, &domain.AppointmentReminder{
					ID:            uuid.New(),
					AppointmentID: appt.ID,
					Kind:          kind,
					SentAt:        now,
				}); err != nil {
					return customError.WrapDatabaseError(err)
				}
				current, err := tx.Appointments().GetByIDForUpdate(ctx, appt.ID)
				if err != nil {
					return dbError(err)
				}
				current.ReminderSentAt = &now
				current.UpdatedAt = now
				return dbError(tx.Appointments().Update(ctx, current))
			})
			return err == nil, err
		})
	}

	j.finish(ctx, report)
	return report, nil
}

// ExpireLeases closes active leases whose end date has passed and frees the
// property when no other lease holds it.
func (j *BillingJobs) ExpireLeases(ctx context.Context, now time.Time) (*JobReport, error) {
	report := &JobReport{Job: JobLeaseExpiry}

	today := now.In(j.config.Location)
	leases, err := j.store.Leases().ListEndedBefore(ctx, today)
	if err != nil {
		return report, customError.WrapDatabaseError(err)
	}

	for _, candidate := range leases {
		id := candidate.ID
		j.run(ctx, report, domain.EntityLease, id, func() (bool, error) {
			changed := false
			err := j.store.WithinTx(ctx, func(tx repository.Store) error {
				lease, err := tx.Leases().GetByIDForUpdate(ctx, id)
				if err != nil {
					return dbError(err)
				}
				before := *lease
				if err := lease.Expire(now); err != nil {
					return nil
				}
				if err := tx.Leases().Update(ctx, lease); err != nil {
					return customError.WrapDatabaseError(err)
				}
				if err := releaseProperty(ctx, tx, lease); err != nil {
					return err
				}
				changed = true
				return audit(ctx, tx, domain.AuditUpdated, domain.EntityLease, lease.ID, before, lease, "expired", now)
			})
			return changed, err
		})
	}

	j.finish(ctx, report)
	return report, nil
}

// releaseProperty marks the lease's property available unless another
// active lease still holds it.
func releaseProperty(ctx context.Context, tx repository.Store, lease *domain.Lease) error {
	other, err := tx.Leases().HasOtherActive(ctx, lease.PropertyID, lease.ID)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if other {
		return nil
	}
	err = tx.Properties().SetStatus(ctx, lease.PropertyID, domain.PropertyAvailable)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

// SweepStalePayments re-verifies payments left open and untouched for
// StaleAfter. A definitive gateway answer is applied. Anything else is
// flagged for review once and waits another StaleAfter before the next check.
func (j *BillingJobs) SweepStalePayments(ctx context.Context, now time.Time) (*JobReport, error) {
	report := &JobReport{Job: JobStalePayments}

	cutoff := now.Add(-j.config.StaleAfter)
	var cursor repository.Cursor
	for attempted := 0; attempted < j.config.BatchSize; {
		payments, err := j.store.Payments().ListStale(ctx, cutoff, cursor, j.config.BatchSize)
		if err != nil {
			return report, customError.WrapDatabaseError(err)
		}

		for _, p := range payments {
			if attempted >= j.config.BatchSize {
				break
			}
			cursor = repository.Cursor{At: p.UpdatedAt, ID: p.ID}
			txID := p.TransactionID
			if j.run(ctx, report, domain.EntityPayment, p.ID, func() (bool, error) {
				result, err := j.reconciler.Verify(ctx, txID, "sweep")
				if err != nil {
					return false, err
				}
				if result.Processed {
					return true, nil
				}
				return j.flagStale(ctx, txID, result.Message, now)
			}) {
				attempted++
			}
		}
		if len(payments) < j.config.BatchSize {
			break
		}
	}

	j.finish(ctx, report)
	return report, nil
}

func (j *BillingJobs) flagStale(ctx context.Context, transactionID, reason string, now time.Time) (bool, error) {
	flagged := false
	err := j.store.WithinTx(ctx, func(tx repository.Store) error {
		p, err := tx.Payments().GetByTransactionIDForUpdate(ctx, transactionID)
		if err != nil {
			return dbError(err)
		}
		if !p.IsOpen() {
			return nil
		}
		// Touching updated_at moves the payment to the back of the sweep.
		p.UpdatedAt = now
		_, done := p.Metadata["flagged_for_review_at"]
		if !done {
			p.SetMeta("flagged_for_review_at", now.UTC().Format(time.RFC3339))
		}
		if err := tx.Payments().Update(ctx, p); err != nil {
			return customError.WrapDatabaseError(err)
		}
		if done {
			return nil
		}
		flagged = true
		return audit(ctx, tx, domain.AuditFlaggedForReview, domain.EntityPayment, p.ID, nil, p,
			"stale payment: "+reason, now)
	})
	if flagged {
		logger.FromContext(ctx, j.logger).Warn("stale payment flagged for manual review",
			zap.String("transaction_id", transactionID), zap.String("reason", reason))
	}
	return flagged, err
}
