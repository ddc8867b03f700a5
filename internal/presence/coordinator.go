// Package presence enforces the check-in/check-out state machine across the
// member registry and the attendance ledger. Each member is either AWAY or
// PRESENT; a transition mutates the ledger and the registry flag as one logical
// unit, serialized per member.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"membership/internal/apperr"
	"membership/internal/attendance"
	"membership/internal/member"
	"membership/internal/metrics"
	"membership/internal/store"
)

// MemberStore is the slice of the member registry the coordinator needs.
type MemberStore interface {
	GetByMemberID(ctx context.Context, memberID string) (member.Member, error)
	ListAll(ctx context.Context) ([]member.Member, error)
	SetPresence(ctx context.Context, q store.Querier, id string, present bool, lastCheckIn, lastCheckOut *time.Time) error
}

// Ledger is the slice of the attendance ledger the coordinator needs.
type Ledger interface {
	OpenTx(ctx context.Context, q store.Querier, rec attendance.Record) (attendance.Record, error)
	CloseTx(ctx context.Context, q store.Querier, recordID string, at time.Time, loc *attendance.GeoPoint) (attendance.Record, error)
	FindOpenFor(ctx context.Context, memberRef string) (attendance.Record, error)
	LastTimesFor(ctx context.Context, memberRef string) (lastIn, lastOut *time.Time, err error)
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(q store.Querier) error) error
}

// Coordinator owns the per-member transition lock and the two-store write path.
type Coordinator struct {
	members MemberStore
	ledger  Ledger
	tx      TxRunner
	log     *zap.Logger

	now   func() time.Time
	locks sync.Map // member id -> *sync.Mutex
}

// NewCoordinator wires the two stores behind the state machine.
func NewCoordinator(members MemberStore, ledger Ledger, tx TxRunner, log *zap.Logger) *Coordinator {
	return &Coordinator{
		members: members,
		ledger:  ledger,
		tx:      tx,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// lockFor returns the mutex serializing transitions for one member. Concurrent
// requests for the same member must not both pass the presence check.
func (c *Coordinator) lockFor(memberID string) *sync.Mutex {
	mu, _ := c.locks.LoadOrStore(memberID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CheckIn transitions a member AWAY -> PRESENT, opening a ledger record and
// flipping the registry flag in one transaction.
func (c *Coordinator) CheckIn(ctx context.Context, memberID string, loc *attendance.GeoPoint) (attendance.Record, error) {
	mu := c.lockFor(memberID)
	mu.Lock()
	defer mu.Unlock()

	m, err := c.members.GetByMemberID(ctx, memberID)
	if err != nil {
		return attendance.Record{}, err
	}
	if m.IsPresent {
		metrics.TransitionConflicts.WithLabelValues("check-in").Inc()
		return attendance.Record{}, apperr.Conflict("member is already checked in")
	}

	now := c.now()
	var rec attendance.Record
	err = c.tx.WithinTx(ctx, func(q store.Querier) error {
		var err error
		rec, err = c.ledger.OpenTx(ctx, q, attendance.Record{
			MemberRef:       m.ID,
			CheckIn:         now,
			CheckInLocation: loc,
		})
		if err != nil {
			return err
		}
		return c.members.SetPresence(ctx, q, m.ID, true, &rec.CheckIn, nil)
	})
	if err != nil {
		return attendance.Record{}, fmt.Errorf("check-in %s: %w", memberID, err)
	}

	metrics.CheckIns.Inc()
	c.log.Info("member checked in",
		zap.String("member_id", memberID),
		zap.String("record_id", rec.ID))
	return rec, nil
}

// CheckOut transitions a member PRESENT -> AWAY, closing the open ledger record
// and flipping the registry flag in one transaction.
func (c *Coordinator) CheckOut(ctx context.Context, memberID string, loc *attendance.GeoPoint) (attendance.Record, error) {
	mu := c.lockFor(memberID)
	mu.Lock()
	defer mu.Unlock()

	m, err := c.members.GetByMemberID(ctx, memberID)
	if err != nil {
		return attendance.Record{}, err
	}
	if !m.IsPresent {
		metrics.TransitionConflicts.WithLabelValues("check-out").Inc()
		return attendance.Record{}, apperr.Conflict("member is not checked in")
	}

	open, err := c.ledger.FindOpenFor(ctx, m.ID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			// The flag says PRESENT but the ledger has no open record. The
			// ledger is the source of truth; report the breach and leave
			// repair to Reconcile.
			metrics.ConsistencyBreaches.Inc()
			c.log.Error("presence flag set with no open attendance record",
				zap.String("member_id", memberID))
			return attendance.Record{}, apperr.Consistency(
				"no active attendance record found for present member %s", memberID)
		}
		return attendance.Record{}, err
	}

	now := c.now()
	var closed attendance.Record
	err = c.tx.WithinTx(ctx, func(q store.Querier) error {
		var err error
		closed, err = c.ledger.CloseTx(ctx, q, open.ID, now, loc)
		if err != nil {
			return err
		}
		return c.members.SetPresence(ctx, q, m.ID, false, nil, closed.CheckOut)
	})
	if err != nil {
		return attendance.Record{}, fmt.Errorf("check-out %s: %w", memberID, err)
	}

	metrics.CheckOuts.Inc()
	c.log.Info("member checked out",
		zap.String("member_id", memberID),
		zap.String("record_id", closed.ID),
		zap.Int("duration_minutes", closed.Duration))
	return closed, nil
}

// ReconcileResult summarizes a repair pass.
type ReconcileResult struct {
	Checked  int `json:"checked"`
	Repaired int `json:"repaired"`
}

// Reconcile re-derives every member's presence flag from the ledger, repairing
// divergence left by partial failures. The ledger is the source of truth.
func (c *Coordinator) Reconcile(ctx context.Context) (ReconcileResult, error) {
	members, err := c.members.ListAll(ctx)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("list members: %w", err)
	}

	res := ReconcileResult{Checked: len(members)}
	for _, m := range members {
		mu := c.lockFor(m.MemberID)
		mu.Lock()

		_, err := c.ledger.FindOpenFor(ctx, m.ID)
		hasOpen := err == nil
		if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
			mu.Unlock()
			return res, err
		}
		if hasOpen == m.IsPresent {
			mu.Unlock()
			continue
		}

		lastIn, lastOut, err := c.ledger.LastTimesFor(ctx, m.ID)
		if err != nil {
			mu.Unlock()
			return res, err
		}
		err = c.tx.WithinTx(ctx, func(q store.Querier) error {
			return c.members.SetPresence(ctx, q, m.ID, hasOpen, lastIn, lastOut)
		})
		mu.Unlock()
		if err != nil {
			return res, fmt.Errorf("repair member %s: %w", m.MemberID, err)
		}
		res.Repaired++
		c.log.Warn("repaired presence flag",
			zap.String("member_id", m.MemberID),
			zap.Bool("is_present", hasOpen))
	}
	return res, nil
}

// VerifyInvariant checks that isPresent matches the ledger for one member.
// Exposed for tests and diagnostics.
func (c *Coordinator) VerifyInvariant(ctx context.Context, memberID string) error {
	m, err := c.members.GetByMemberID(ctx, memberID)
	if err != nil {
		return err
	}
	_, err = c.ledger.FindOpenFor(ctx, m.ID)
	hasOpen := err == nil
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return err
	}
	if hasOpen != m.IsPresent {
		return apperr.Consistency("presence flag %v diverges from ledger for member %s",
			m.IsPresent, memberID)
	}
	return nil
}
