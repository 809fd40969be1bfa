// Package booking holds the appointment draft and its submission state
// machine, shared by every booking surface.
package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"salonfront/internal/catalog"
	"salonfront/pkg/domain"
)

// Phase is the form's lifecycle state.
type Phase string

const (
	PhaseEditing    Phase = "editing"
	PhaseSubmitting Phase = "submitting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// FailureKind mirrors the submission client's error taxonomy without
// importing it, so the state machine stays transport-agnostic.
type FailureKind string

const (
	FailValidation FailureKind = "validation"
	FailAuth       FailureKind = "auth"
	FailNetwork    FailureKind = "network"
	FailServer     FailureKind = "server"
)

// FallbackMessage is shown when a failure carries no usable message.
const FallbackMessage = "Failed to book appointment"

// Failure is the recoverable terminal outcome of a submission attempt.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

func (f Failure) DisplayMessage() string {
	if f.Message == "" {
		return FallbackMessage
	}
	return f.Message
}

// Draft is the in-progress booking request. ServiceIDs and ComboID are
// mutually exclusive; Date is unset while zero.
type Draft struct {
	ServiceIDs []string
	ComboID    string
	Date       time.Time
	Slot       string
	Notes      string
}

func (d Draft) clone() Draft {
	out := d
	out.ServiceIDs = append([]string(nil), d.ServiceIDs...)
	return out
}

// Submitter persists a validated draft against the visitor's credential.
// A nil return means the appointment was created.
type Submitter interface {
	SubmitBooking(ctx context.Context, draft Draft, credential string) *Failure
}

// Snapshot is the observable form state handed to subscribers and surfaces.
type Snapshot struct {
	Phase       Phase
	Draft       Draft
	Slots       []domain.TimeSlot
	Failure     *Failure
	SucceededAt time.Time
}

var (
	ErrDateRequired      = errors.New("appointment date is required")
	ErrSlotRequired      = errors.New("time slot is required")
	ErrSelectionRequired = errors.New("select exactly one service or combo")
	ErrSlotNotInCatalog  = errors.New("slot is not in the current catalog")
	ErrNotEditable       = errors.New("form is not editable in its current state")
	ErrSubmitInFlight    = errors.New("a submission is already in flight")
	ErrClosed            = errors.New("booking surface is closed")
)

// Form is the booking state machine. All mutations are serialized by one
// mutex; at most one submission is in flight, gated on the phase rather
// than a separate lock.
type Form struct {
	slots     catalog.Provider
	submitter Submitter
	now       func() time.Time

	mu          sync.Mutex
	phase       Phase
	draft       Draft
	slotList    []domain.TimeSlot
	failure     *Failure
	succeededAt time.Time
	gen         uint64
	closed      bool
	subs        []func(Snapshot)
}

// NewForm builds an empty form in the editing phase.
func NewForm(slots catalog.Provider, submitter Submitter) *Form {
	return &Form{
		slots:     slots,
		submitter: submitter,
		now:       time.Now,
		phase:     PhaseEditing,
	}
}

// WithClock overrides the form's clock, for tests.
func (f *Form) WithClock(now func() time.Time) *Form {
	f.now = now
	return f
}

// Subscribe registers an observer called synchronously after every
// transition with the resulting snapshot.
func (f *Form) Subscribe(fn func(Snapshot)) {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
}

// Initialize resets the form to editing with the given preselection,
// discarding prior edits and orphaning any in-flight submission result.
func (f *Form) Initialize(pre domain.Preselection) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	f.gen++
	f.phase = PhaseEditing
	f.failure = nil
	f.succeededAt = time.Time{}
	f.slotList = nil
	f.draft = Draft{}
	if pre.ServiceID != "" {
		f.draft.ServiceIDs = []string{pre.ServiceID}
	} else if pre.ComboID != "" {
		f.draft.ComboID = pre.ComboID
	}
	f.notifyLocked()
	return nil
}

// SetDate chooses the appointment date. The previously chosen slot is
// cleared because slot choices are date-scoped, and the slot list is
// refreshed from the catalog.
func (f *Form) SetDate(date time.Time) error {
	f.mu.Lock()
	if err := f.editableLocked(); err != nil {
		f.mu.Unlock()
		return err
	}
	slots, err := f.slots.SlotsFor(date)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.draft.Date = catalog.DayOf(date)
	f.draft.Slot = ""
	f.slotList = slots
	f.resumeEditingLocked()
	f.notifyLocked()
	return nil
}

// SetSlot picks a slot from the list last produced for the current date.
// An out-of-catalog value is a programming error and is rejected.
func (f *Form) SetSlot(slot string) error {
	f.mu.Lock()
	if err := f.editableLocked(); err != nil {
		f.mu.Unlock()
		return err
	}
	if !f.slotInCatalogLocked(slot) {
		f.mu.Unlock()
		return ErrSlotNotInCatalog
	}
	f.draft.Slot = slot
	f.resumeEditingLocked()
	f.notifyLocked()
	return nil
}

// SetNotes updates the free-text notes; allowed in every phase except
// while a submission is in flight.
func (f *Form) SetNotes(notes string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.phase == PhaseSubmitting {
		f.mu.Unlock()
		return ErrNotEditable
	}
	f.draft.Notes = notes
	if f.phase == PhaseFailed {
		f.resumeEditingLocked()
	}
	f.notifyLocked()
	return nil
}

// Submit validates the draft and dispatches exactly one asynchronous
// submission. While one is in flight further calls are no-ops. Validation
// failures resolve locally; the submitter is never contacted for them.
func (f *Form) Submit(ctx context.Context, credential string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	switch f.phase {
	case PhaseSubmitting:
		f.mu.Unlock()
		return ErrSubmitInFlight
	case PhaseSucceeded:
		f.mu.Unlock()
		return ErrNotEditable
	}
	if err := f.validateLocked(); err != nil {
		f.notifyLocked()
		return err
	}

	f.phase = PhaseSubmitting
	f.failure = nil
	gen := f.gen
	draft := f.draft.clone()
	f.notifyLocked()

	go func() {
		failure := f.submitter.SubmitBooking(ctx, draft, credential)
		f.finish(gen, failure)
	}()
	return nil
}

// Close discards the draft. Any in-flight result that arrives later is
// dropped silently.
func (f *Form) Close() {
	f.mu.Lock()
	f.closed = true
	f.gen++
	f.mu.Unlock()
}

// Snapshot returns the current observable state.
func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// validateLocked applies the ordered submit preconditions, recording the
// first violation as a local validation failure.
func (f *Form) validateLocked() error {
	fail := func(err error) error {
		f.phase = PhaseFailed
		f.failure = &Failure{Kind: FailValidation, Message: err.Error()}
		return err
	}
	if f.draft.Date.IsZero() {
		return fail(ErrDateRequired)
	}
	if f.draft.Slot == "" {
		return fail(ErrSlotRequired)
	}
	hasServices := len(f.draft.ServiceIDs) > 0
	hasCombo := f.draft.ComboID != ""
	if hasServices == hasCombo {
		return fail(ErrSelectionRequired)
	}
	return nil
}

// finish applies an asynchronous submission result, unless the form moved
// on (re-initialized or closed) while the request was in flight.
func (f *Form) finish(gen uint64, failure *Failure) {
	f.mu.Lock()
	if f.closed || gen != f.gen || f.phase != PhaseSubmitting {
		f.mu.Unlock()
		return
	}
	if failure == nil {
		f.phase = PhaseSucceeded
		f.succeededAt = f.now()
		f.failure = nil
	} else {
		f.phase = PhaseFailed
		fcopy := *failure
		f.failure = &fcopy
	}
	f.notifyLocked()
}

func (f *Form) editableLocked() error {
	if f.closed {
		return ErrClosed
	}
	if f.phase != PhaseEditing && f.phase != PhaseFailed {
		return ErrNotEditable
	}
	return nil
}

// resumeEditingLocked clears a recoverable failure once the visitor edits.
func (f *Form) resumeEditingLocked() {
	if f.phase == PhaseFailed {
		f.phase = PhaseEditing
		f.failure = nil
	}
}

func (f *Form) slotInCatalogLocked(slot string) bool {
	for _, s := range f.slotList {
		if string(s) == slot {
			return true
		}
	}
	return false
}

func (f *Form) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:       f.phase,
		Draft:       f.draft.clone(),
		Slots:       append([]domain.TimeSlot(nil), f.slotList...),
		SucceededAt: f.succeededAt,
	}
	if f.failure != nil {
		fcopy := *f.failure
		snap.Failure = &fcopy
	}
	return snap
}

// notifyLocked releases the lock and fans the snapshot out to subscribers,
// so observers may call back into the form.
func (f *Form) notifyLocked() {
	snap := f.snapshotLocked()
	subs := make([]func(Snapshot), len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}
