package member

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"membership/internal/apperr"
	"membership/internal/store"
)

type fakeStore struct {
	byMemberID map[string]Member
	maxID      string
	created    []Member
	deletedIDs []string
	cardIssued []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{byMemberID: map[string]Member{}}
}

func (f *fakeStore) Create(_ context.Context, m Member) error {
	f.created = append(f.created, m)
	f.byMemberID[m.MemberID] = m
	f.maxID = m.MemberID
	return nil
}

func (f *fakeStore) GetByMemberID(_ context.Context, memberID string) (Member, error) {
	m, ok := f.byMemberID[memberID]
	if !ok {
		return Member{}, apperr.NotFound("member not found")
	}
	return m, nil
}

func (f *fakeStore) MaxMemberID(context.Context) (string, error) { return f.maxID, nil }

func (f *fakeStore) EmailOrPhoneExists(_ context.Context, email, phone string) (bool, error) {
	for _, m := range f.byMemberID {
		if m.Email == email || m.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) List(context.Context, ListFilter) ([]Member, int, error) { return nil, 0, nil }
func (f *fakeStore) Search(context.Context, SearchFilter) ([]Member, error)  { return nil, nil }
func (f *fakeStore) ListAll(context.Context) ([]Member, error)               { return nil, nil }
func (f *fakeStore) Present(context.Context) ([]Member, error)               { return nil, nil }

func (f *fakeStore) ListWithoutCards(context.Context) ([]Member, error) {
	var out []Member
	for _, m := range f.byMemberID {
		if !m.IssuedCard {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateFields(_ context.Context, memberID string, fields map[string]any) (Member, error) {
	m, ok := f.byMemberID[memberID]
	if !ok {
		return Member{}, apperr.NotFound("member not found")
	}
	if v, ok := fields["full_name"]; ok {
		m.FullName = v.(string)
	}
	if v, ok := fields["status"]; ok {
		m.Status = v.(string)
	}
	f.byMemberID[memberID] = m
	return m, nil
}

func (f *fakeStore) DeleteTx(_ context.Context, _ store.Querier, id string) error {
	for key, m := range f.byMemberID {
		if m.ID == id {
			delete(f.byMemberID, key)
			f.deletedIDs = append(f.deletedIDs, id)
			return nil
		}
	}
	return apperr.NotFound("member not found")
}

func (f *fakeStore) SetCardIssued(_ context.Context, id string, issued bool) error {
	for key, m := range f.byMemberID {
		if m.ID == id {
			m.IssuedCard = issued
			f.byMemberID[key] = m
			f.cardIssued = append(f.cardIssued, id)
			return nil
		}
	}
	return apperr.NotFound("member not found")
}

func (f *fakeStore) MarkCardsIssued(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := f.SetCardIssued(ctx, id, true); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) Stats(context.Context) (Stats, error) { return Stats{}, nil }

type fakeLedger struct {
	deletedFor []string
	perMember  int64
}

func (f *fakeLedger) DeleteByMemberTx(_ context.Context, _ store.Querier, memberRef string) (int64, error) {
	f.deletedFor = append(f.deletedFor, memberRef)
	return f.perMember, nil
}

type fakeTx struct{ failWith error }

func (f *fakeTx) WithinTx(_ context.Context, fn func(q store.Querier) error) error {
	if f.failWith != nil {
		return f.failWith
	}
	return fn(nil)
}

type fakeQR struct{ calls []string }

func (f *fakeQR) Generate(memberID string) (string, error) {
	f.calls = append(f.calls, memberID)
	return "/qr-codes/" + memberID + ".png", nil
}

func newTestService(repo *fakeStore, ledger *fakeLedger, at time.Time) (*Service, *fakeQR) {
	qr := &fakeQR{}
	s := NewService(repo, ledger, &fakeTx{}, qr, zap.NewNop())
	s.now = func() time.Time { return at }
	return s, qr
}

func validInput(email, phone string) RegisterInput {
	return RegisterInput{
		FullName:       "Nimal Perera",
		Gender:         "male",
		Phone:          phone,
		Email:          email,
		DateOfBirth:    time.Date(1998, 6, 15, 0, 0, 0, 0, time.UTC),
		Department:     "ERA Softwares",
		MembershipType: "Student",
	}
}

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	repo := newFakeStore()
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	svc, qr := newTestService(repo, &fakeLedger{}, now)

	first, err := svc.Register(context.Background(), validInput("a@era.lk", "0711111111"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if first.MemberID != "24010001" {
		t.Fatalf("first id = %q, want 24010001", first.MemberID)
	}

	second, err := svc.Register(context.Background(), validInput("b@era.lk", "0722222222"))
	if err != nil {
		t.Fatalf("register second: %v", err)
	}
	if second.MemberID != "24010002" {
		t.Fatalf("second id = %q, want 24010002", second.MemberID)
	}

	if len(qr.calls) != 2 || qr.calls[0] != "24010001" {
		t.Fatalf("qr generated for %v", qr.calls)
	}
	if first.QRCodeURL != "/qr-codes/24010001.png" {
		t.Fatalf("qr url = %q", first.QRCodeURL)
	}
	if first.Status != StatusActive {
		t.Fatalf("status = %q, want active", first.Status)
	}
}

func TestSequenceSurvivesMonthRollover(t *testing.T) {
	repo := newFakeStore()
	repo.maxID = "23120041"
	now := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestService(repo, &fakeLedger{}, now)

	m, err := svc.Register(context.Background(), validInput("c@era.lk", "0733333333"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	// New YYMM prefix, but the 4-digit sequence continues from the old month.
	if m.MemberID != "24010042" {
		t.Fatalf("id = %q, want 24010042", m.MemberID)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	repo := newFakeStore()
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestService(repo, &fakeLedger{}, now)

	if _, err := svc.Register(context.Background(), validInput("dup@era.lk", "0711111111")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(context.Background(), validInput("dup@era.lk", "0799999999"))
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("duplicate email: got %v, want conflict", err)
	}
	_, err = svc.Register(context.Background(), validInput("new@era.lk", "0711111111"))
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("duplicate phone: got %v, want conflict", err)
	}
}

func TestRegisterValidatesEnums(t *testing.T) {
	repo := newFakeStore()
	svc, _ := newTestService(repo, &fakeLedger{}, time.Now())

	in := validInput("d@era.lk", "0744444444")
	in.Gender = "unknown"
	_, err := svc.Register(context.Background(), in)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("got %v, want validation error", err)
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Fields["gender"] == "" {
		t.Fatalf("expected gender field detail, got %+v", ae)
	}

	in = validInput("d@era.lk", "0744444444")
	in.MembershipType = "Visitor"
	if _, err := svc.Register(context.Background(), in); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("bad membership type: got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatal("invalid input must not be persisted")
	}
}

func TestDeleteCascadesLedger(t *testing.T) {
	repo := newFakeStore()
	ledger := &fakeLedger{perMember: 3}
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestService(repo, ledger, now)

	m, err := svc.Register(context.Background(), validInput("e@era.lk", "0755555555"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.Delete(context.Background(), m.MemberID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(ledger.deletedFor) != 1 || ledger.deletedFor[0] != m.ID {
		t.Fatalf("ledger cascade for %v, want [%s]", ledger.deletedFor, m.ID)
	}
	if len(repo.deletedIDs) != 1 {
		t.Fatal("member row not removed")
	}

	// Second delete is an ordinary not-found, not an error state.
	if err := svc.Delete(context.Background(), m.MemberID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("repeat delete: got %v, want not-found", err)
	}
}

func TestIssueCardOnce(t *testing.T) {
	repo := newFakeStore()
	svc, _ := newTestService(repo, &fakeLedger{}, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	m, err := svc.Register(context.Background(), validInput("f@era.lk", "0766666666"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.IssueCard(context.Background(), m.MemberID); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.IssueCard(context.Background(), m.MemberID); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("second issue: got %v, want conflict", err)
	}
}

func TestAgeAt(t *testing.T) {
	m := Member{DateOfBirth: time.Date(2000, 3, 1, 0, 0, 0, 0, time.UTC)}
	if got := m.AgeAt(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)); got != 24 {
		t.Fatalf("age = %d, want 24", got)
	}
	future := Member{DateOfBirth: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	if got := future.AgeAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)); got != 0 {
		t.Fatalf("future dob age = %d, want 0", got)
	}
}
