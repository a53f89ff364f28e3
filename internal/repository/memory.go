package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/rental-billing/internal/domain"
)

type memoryData struct {
	payments     map[string]domain.Payment
	invoices     map[uuid.UUID]domain.Invoice
	appointments map[uuid.UUID]domain.Appointment
	leases       map[uuid.UUID]domain.Lease
	properties   map[uuid.UUID]domain.Property
	contacts     map[uuid.UUID]domain.Contact
	reminders    []domain.AppointmentReminder
	audit        []domain.AuditEntry
	settings     map[string]domain.Setting
}

func newMemoryData() *memoryData {
	return &memoryData{
		payments:     make(map[string]domain.Payment),
		invoices:     make(map[uuid.UUID]domain.Invoice),
		appointments: make(map[uuid.UUID]domain.Appointment),
		leases:       make(map[uuid.UUID]domain.Lease),
		properties:   make(map[uuid.UUID]domain.Property),
		contacts:     make(map[uuid.UUID]domain.Contact),
		settings:     make(map[string]domain.Setting),
	}
}

func (d *memoryData) clone() *memoryData {
	c := newMemoryData()
	for k, v := range d.payments {
		v.Metadata = v.Metadata.Clone()
		c.payments[k] = v
	}
	for k, v := range d.invoices {
		c.invoices[k] = v
	}
	for k, v := range d.appointments {
		c.appointments[k] = v
	}
	for k, v := range d.leases {
		c.leases[k] = v
	}
	for k, v := range d.properties {
		c.properties[k] = v
	}
	for k, v := range d.contacts {
		c.contacts[k] = v
	}
	for k, v := range d.settings {
		c.settings[k] = v
	}
	c.reminders = append(c.reminders, d.reminders...)
	c.audit = append(c.audit, d.audit...)
	return c
}

type memoryState struct {
	// mu serializes whole transactions as well as single statements, which
	// gives the same outcome as row locks for the workloads billing runs.
	mu   sync.Mutex
	data *memoryData
}

// MemoryStore is an in-process Store used by tests and the memory storage
// driver. Transactions are serialized and rolled back by snapshot.
type MemoryStore struct {
	state *memoryState
	inTx  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memoryState{data: newMemoryData()}}
}

var _ Store = (*MemoryStore)(nil)

// lock acquires the store for one statement unless a transaction already holds it.
func (s *MemoryStore) lock(ctx context.Context) (*memoryData, func(), error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}
	if s.inTx {
		return s.state.data, func() {}, nil
	}
	s.state.mu.Lock()
	return s.state.data, s.state.mu.Unlock, nil
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	snapshot := s.state.data.clone()
	if err := fn(&MemoryStore{state: s.state, inTx: true}); err != nil {
		s.state.data = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) Payments() PaymentRepository         { return memPayments{s} }
func (s *MemoryStore) Invoices() InvoiceRepository         { return memInvoices{s} }
func (s *MemoryStore) Appointments() AppointmentRepository { return memAppointments{s} }
func (s *MemoryStore) Leases() LeaseRepository             { return memLeases{s} }
func (s *MemoryStore) Properties() PropertyRepository      { return memProperties{s} }
func (s *MemoryStore) Contacts() ContactRepository         { return memContacts{s} }
func (s *MemoryStore) Reminders() ReminderRepository       { return memReminders{s} }
func (s *MemoryStore) Audit() AuditRepository              { return memAudit{s} }
func (s *MemoryStore) Settings() SettingsRepository        { return memSettings{s} }

type memPayments struct{ s *MemoryStore }

func (r memPayments) Create(ctx context.Context, p *domain.Payment) error {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := d.payments[p.TransactionID]; ok {
		return ErrDuplicate
	}
	cp := *p
	cp.Metadata = p.Metadata.Clone()
	d.payments[p.TransactionID] = cp
	return nil
}

func (r memPayments) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	p, ok := d.payments[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	p.Metadata = p.Metadata.Clone()
	return &p, nil
}

func (r memPayments) GetByTransactionIDForUpdate(ctx context.Context, transactionID string) (*domain.Payment, error) {
	return r.GetByTransactionID(ctx, transactionID)
}

func (r memPayments) Update(ctx context.Context, p *domain.Payment) error {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := d.payments[p.TransactionID]; !ok {
		return ErrNotFound
	}
	cp := *p
	cp.Metadata = p.Metadata.Clone()
	d.payments[p.TransactionID] = cp
	return nil
}

func (r memPayments) ListStale(ctx context.Context, before time.Time, after Cursor, limit int) ([]*domain.Payment, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []*domain.Payment
	for _, p := range d.payments {
		open := p.Status == domain.PaymentStatusPending || p.Status == domain.PaymentStatusProcessing
		if open && p.UpdatedAt.Before(before) && after.Before(p.UpdatedAt, p.ID) {
			p := p
			p.Metadata = p.Metadata.Clone()
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return Cursor{At: out[i].UpdatedAt, ID: out[i].ID}.Before(out[j].UpdatedAt, out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memInvoices struct{ s *MemoryStore }

func (r memInvoices) Create(ctx context.Context, inv *domain.Invoice) error {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	for _, existing := range d.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return ErrDuplicate
		}
		// mirrors the partial unique index on rent periods
		if inv.Type == domain.InvoiceTypeRent && existing.Type == domain.InvoiceTypeRent &&
			existing.LeaseID == inv.LeaseID && sameDay(existing.PeriodStart, inv.PeriodStart) {
			return ErrDuplicate
		}
	}
	d.invoices[inv.ID] = *inv
	return nil
}

func (r memInvoices) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	inv, ok := d.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (r memInvoices) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	return r.GetByID(ctx, id)
}

func (r memInvoices) Update(ctx context.Context, inv *domain.Invoice) error {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := d.invoices[inv.ID]; !ok {
		return ErrNotFound
	}
	d.invoices[inv.ID] = *inv
	return nil
}

func (r memInvoices) ExistsForPeriod(ctx context.Context, leaseID uuid.UUID, invoiceType domain.InvoiceType, periodStart time.Time) (bool, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()
	for _, inv := range d.invoices {
		if inv.LeaseID == leaseID && inv.Type == invoiceType && sameDay(inv.PeriodStart, periodStart) {
			return true, nil
		}
	}
	return false, nil
}

func (r memInvoices) ListPendingDueBefore(ctx context.Context, now time.Time, after Cursor, limit int) ([]*domain.Invoice, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []*domain.Invoice
	for _, inv := range d.invoices {
		if inv.Status == domain.InvoiceStatusPending && inv.DueDate.Before(now) && after.Before(inv.DueDate, inv.ID) {
			inv := inv
			out = append(out, &inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return Cursor{At: out[i].DueDate, ID: out[i].ID}.Before(out[j].DueDate, out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memAppointments struct{ s *MemoryStore }

func (r memAppointments) Create(ctx context.Context, a *domain.Appointment) error {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := d.appointments[a.ID]; ok {
		return ErrDuplicate
	}
	d.appointments[a.ID] = *a
	return nil
}

func (r memAppointments) GetByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	a, ok := d.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r memAppointments) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	return r.GetByID(ctx, id)
}

func (r memAppointments) Update(ctx context.Context, a *domain.Appointment) error {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := d.appointments[a.ID]; !ok {
		return ErrNotFound
	}
	d.appointments[a.ID] = *a
	return nil
}

func (r memAppointments) ListConfirmedBetween(ctx context.Context, from, to time.Time) ([]*domain.Appointment, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []*domain.Appointment
	for _, a := range d.appointments {
		if a.Status == domain.AppointmentStatusConfirmed && !a.ScheduledAt.Before(from) && !a.ScheduledAt.After(to) {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

type memLeases struct{ s *MemoryStore }

func (r memLeases) Create(ctx context.Context, l *domain.Lease) error {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := d.leases[l.ID]; ok {
		return ErrDuplicate
	}
	d.leases[l.ID] = *l
	return nil
}

func (r memLeases) GetByID(ctx context.Context, id uuid.UUID) (*domain.Lease, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	l, ok := d.leases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (r memLeases) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Lease, error) {
	return r.GetByID(ctx, id)
}

func (r memLeases) Update(ctx context.Context, l *domain.Lease) error {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := d.leases[l.ID]; !ok {
		return ErrNotFound
	}
	if l.Status == domain.LeaseStatusActive {
		for id, other := range d.leases {
			if id != l.ID && other.PropertyID == l.PropertyID && other.Status == domain.LeaseStatusActive {
				return ErrDuplicate
			}
		}
	}
	d.leases[l.ID] = *l
	return nil
}

func (r memLeases) ListActive(ctx context.Context) ([]*domain.Lease, error) {
	return r.list(ctx, func(l domain.Lease) bool { return l.Status == domain.LeaseStatusActive })
}

func (r memLeases) ListEndedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Lease, error) {
	day := dateOnly(cutoff)
	return r.list(ctx, func(l domain.Lease) bool {
		return l.Status == domain.LeaseStatusActive && dateOnly(l.EndDate) < day
	})
}

func (r memLeases) list(ctx context.Context, keep func(domain.Lease) bool) ([]*domain.Lease, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []*domain.Lease
	for _, l := range d.leases {
		if keep(l) {
			l := l
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memLeases) HasOtherActive(ctx context.Context, propertyID, exceptID uuid.UUID) (bool, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()
	for id, l := range d.leases {
		if id != exceptID && l.PropertyID == propertyID && l.Status == domain.LeaseStatusActive {
			return true, nil
		}
	}
	return false, nil
}

type memProperties struct{ s *MemoryStore }

func (r memProperties) Create(ctx context.Context, p *domain.Property) error {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	d.properties[p.ID] = *p
	return nil
}

func (r memProperties) GetByID(ctx context.Context, id uuid.UUID) (*domain.Property, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	p, ok := d.properties[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r memProperties) SetStatus(ctx context.Context, id uuid.UUID, status domain.PropertyStatus) error {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	p, ok := d.properties[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	d.properties[id] = p
	return nil
}

type memContacts struct{ s *MemoryStore }

func (r memContacts) Create(ctx context.Context, c *domain.Contact) error {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	d.contacts[c.ID] = *c
	return nil
}

func (r memContacts) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	c, ok := d.contacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

type memReminders struct{ s *MemoryStore }

func (r memReminders) SentSince(ctx context.Context, appointmentID uuid.UUID, kind domain.ReminderKind, since time.Time) (bool, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()
	for _, rem := range d.reminders {
		if rem.AppointmentID == appointmentID && rem.Kind == kind && !rem.SentAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r memReminders) Record(ctx context.Context, reminder *domain.AppointmentReminder) error {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	d.reminders = append(d.reminders, *reminder)
	return nil
}

type memAudit struct{ s *MemoryStore }

func (r memAudit) Record(ctx context.Context, entry *domain.AuditEntry) error {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	d.audit = append(d.audit, *entry)
	return nil
}

func (r memAudit) ListByEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) ([]*domain.AuditEntry, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []*domain.AuditEntry
	for _, e := range d.audit {
		if e.EntityType == entityType && e.EntityID == entityID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

type memSettings struct{ s *MemoryStore }

func (r memSettings) All(ctx context.Context) ([]domain.Setting, error) {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	out := make([]domain.Setting, 0, len(d.settings))
	for _, s := range d.settings {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r memSettings) Upsert(ctx context.Context, key, value string, now time.Time) error {
	d, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	d.settings[key] = domain.Setting{Key: key, Value: value, UpdatedAt: now}
	return nil
}

func sameDay(a, b time.Time) bool {
	return dateOnly(a) == dateOnly(b)
}
