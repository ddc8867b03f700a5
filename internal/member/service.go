package member

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"membership/internal/apperr"
	"membership/internal/store"
)

// Store is what the service needs from the member repository.
type Store interface {
	Create(ctx context.Context, m Member) error
	GetByMemberID(ctx context.Context, memberID string) (Member, error)
	MaxMemberID(ctx context.Context) (string, error)
	EmailOrPhoneExists(ctx context.Context, email, phone string) (bool, error)
	List(ctx context.Context, f ListFilter) ([]Member, int, error)
	Search(ctx context.Context, f SearchFilter) ([]Member, error)
	ListAll(ctx context.Context) ([]Member, error)
	Present(ctx context.Context) ([]Member, error)
	ListWithoutCards(ctx context.Context) ([]Member, error)
	UpdateFields(ctx context.Context, memberID string, fields map[string]any) (Member, error)
	DeleteTx(ctx context.Context, q store.Querier, id string) error
	SetCardIssued(ctx context.Context, id string, issued bool) error
	MarkCardsIssued(ctx context.Context, ids []string) error
	Stats(ctx context.Context) (Stats, error)
}

// Ledger is the slice of the attendance ledger the registry needs for cascades.
type Ledger interface {
	DeleteByMemberTx(ctx context.Context, q store.Querier, memberRef string) (int64, error)
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(q store.Querier) error) error
}

// QRGenerator produces the per-member QR artifact before the member is persisted.
type QRGenerator interface {
	Generate(memberID string) (string, error)
}

// RegisterInput is the profile supplied at registration.
type RegisterInput struct {
	FullName       string    `json:"fullName" validate:"required"`
	Gender         string    `json:"gender" validate:"required,oneof=male female other"`
	Phone          string    `json:"phone" validate:"required"`
	Email          string    `json:"email" validate:"required,email"`
	DateOfBirth    time.Time `json:"dateOfBirth" validate:"required"`
	Department     string    `json:"department" validate:"omitempty,oneof='ERA OPENLABS' 'ERA Softwares' 'ERA Manufacturing' 'ERA Education' 'None'"`
	MembershipType string    `json:"membershipType" validate:"required,oneof='Student' 'Staff' 'Executive' 'Guest' 'Managing Lead'"`
}

// UpdateInput is a partial profile edit. Nil fields are left untouched.
type UpdateInput struct {
	FullName       *string    `json:"fullName" validate:"omitempty,min=1"`
	Gender         *string    `json:"gender" validate:"omitempty,oneof=male female other"`
	Phone          *string    `json:"phone" validate:"omitempty,min=3"`
	Email          *string    `json:"email" validate:"omitempty,email"`
	DateOfBirth    *time.Time `json:"dateOfBirth"`
	Department     *string    `json:"department" validate:"omitempty,oneof='ERA OPENLABS' 'ERA Softwares' 'ERA Manufacturing' 'ERA Education' 'None'"`
	MembershipType *string    `json:"membershipType" validate:"omitempty,oneof='Student' 'Staff' 'Executive' 'Guest' 'Managing Lead'"`
	Status         *string    `json:"status" validate:"omitempty,oneof=active inactive suspended"`
	IssuedCard     *bool      `json:"issuedCard"`
}

// Service implements the member registry operations.
type Service struct {
	repo   Store
	ledger Ledger
	tx     TxRunner
	qr     QRGenerator
	log    *zap.Logger

	validate *validator.Validate
	now      func() time.Time

	// Registration is serialized because the member ID sequence is re-derived
	// from the current maximum rather than held in an atomic counter. Acceptable
	// under admin-driven registration; see DESIGN.md.
	regMu sync.Mutex
}

// NewService creates the registry service.
func NewService(repo Store, ledger Ledger, tx TxRunner, qr QRGenerator, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledger,
		tx:       tx,
		qr:       qr,
		log:      log,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a member: validates the profile, rejects duplicate email or
// phone, derives the next member ID, generates the QR artifact, and persists.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Member, error) {
	if err := s.validateInput(in); err != nil {
		return Member{}, err
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	exists, err := s.repo.EmailOrPhoneExists(ctx, in.Email, in.Phone)
	if err != nil {
		return Member{}, fmt.Errorf("check duplicates: %w", err)
	}
	if exists {
		return Member{}, apperr.Conflict("member already exists with this email or phone")
	}

	s.regMu.Lock()
	defer s.regMu.Unlock()

	memberID, err := s.nextMemberID(ctx)
	if err != nil {
		return Member{}, err
	}

	qrURL, err := s.qr.Generate(memberID)
	if err != nil {
		return Member{}, fmt.Errorf("generate qr artifact: %w", err)
	}

	department := in.Department
	if department == "" {
		department = "None"
	}
	now := s.now()
	m := Member{
		ID:             uuid.NewString(),
		MemberID:       memberID,
		FullName:       in.FullName,
		Gender:         in.Gender,
		Phone:          in.Phone,
		Email:          in.Email,
		DateOfBirth:    in.DateOfBirth,
		Department:     department,
		MembershipType: in.MembershipType,
		DateJoined:     now,
		QRCodeURL:      qrURL,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return Member{}, fmt.Errorf("create member: %w", err)
	}
	s.log.Info("member registered",
		zap.String("member_id", m.MemberID),
		zap.String("membership_type", m.MembershipType))
	m.Age = m.AgeAt(now)
	return m, nil
}

// nextMemberID derives the next ID from the greatest existing one: the trailing
// 4-digit sequence is global and never resets across YYMM boundaries. Preserved
// deliberately; do not "fix" it to restart monthly.
func (s *Service) nextMemberID(ctx context.Context) (string, error) {
	maxID, err := s.repo.MaxMemberID(ctx)
	if err != nil {
		return "", fmt.Errorf("max member id: %w", err)
	}
	seq := 1
	if len(maxID) >= 4 {
		parsed, err := strconv.Atoi(maxID[len(maxID)-4:])
		if err != nil {
			return "", apperr.Consistency("malformed member id %q in registry", maxID)
		}
		seq = parsed + 1
	}
	return s.now().Format("0601") + fmt.Sprintf("%04d", seq), nil
}

// Get returns a member by human-readable ID with the derived age populated.
func (s *Service) Get(ctx context.Context, memberID string) (Member, error) {
	m, err := s.repo.GetByMemberID(ctx, memberID)
	if err != nil {
		return Member{}, err
	}
	m.Age = m.AgeAt(s.now())
	return m, nil
}

// Update applies a partial, enum-validated edit.
func (s *Service) Update(ctx context.Context, memberID string, in UpdateInput) (Member, error) {
	if err := s.validateInput(in); err != nil {
		return Member{}, err
	}

	fields := map[string]any{}
	put := func(col string, v any, ok bool) {
		if ok {
			fields[col] = v
		}
	}
	put("full_name", deref(in.FullName), in.FullName != nil)
	put("gender", deref(in.Gender), in.Gender != nil)
	put("phone", deref(in.Phone), in.Phone != nil)
	put("email", strings.ToLower(deref(in.Email)), in.Email != nil)
	if in.DateOfBirth != nil {
		fields["date_of_birth"] = *in.DateOfBirth
	}
	put("department", deref(in.Department), in.Department != nil)
	put("membership_type", deref(in.MembershipType), in.MembershipType != nil)
	put("status", deref(in.Status), in.Status != nil)
	if in.IssuedCard != nil {
		fields["issued_card"] = *in.IssuedCard
	}

	m, err := s.repo.UpdateFields(ctx, memberID, fields)
	if err != nil {
		return Member{}, err
	}
	m.Age = m.AgeAt(s.now())
	return m, nil
}

// Delete removes a member and cascades deletion of its attendance records.
// Both deletions run in one transaction so readers never observe the partial
// state; re-running the delete is an ordinary NotFound.
func (s *Service) Delete(ctx context.Context, memberID string) error {
	m, err := s.repo.GetByMemberID(ctx, memberID)
	if err != nil {
		return err
	}
	err = s.tx.WithinTx(ctx, func(q store.Querier) error {
		removed, err := s.ledger.DeleteByMemberTx(ctx, q, m.ID)
		if err != nil {
			return fmt.Errorf("cascade attendance delete: %w", err)
		}
		if err := s.repo.DeleteTx(ctx, q, m.ID); err != nil {
			return err
		}
		s.log.Info("member deleted",
			zap.String("member_id", m.MemberID),
			zap.Int64("attendance_records_removed", removed))
		return nil
	})
	return err
}

// List returns a filtered page plus the total for pagination.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Member, int, error) {
	members, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	s.fillAges(members)
	return members, total, nil
}

// Search matches members on name, email, or member ID.
func (s *Service) Search(ctx context.Context, f SearchFilter) ([]Member, error) {
	members, err := s.repo.Search(ctx, f)
	if err != nil {
		return nil, err
	}
	s.fillAges(members)
	return members, nil
}

// Present returns currently present members.
func (s *Service) Present(ctx context.Context) ([]Member, error) {
	members, err := s.repo.Present(ctx)
	if err != nil {
		return nil, err
	}
	s.fillAges(members)
	return members, nil
}

// Stats returns registry counts.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}

// IssueCard marks a member's card as issued, once.
func (s *Service) IssueCard(ctx context.Context, memberID string) (Member, error) {
	m, err := s.repo.GetByMemberID(ctx, memberID)
	if err != nil {
		return Member{}, err
	}
	if m.IssuedCard {
		return Member{}, apperr.Conflict("card has already been issued to this member")
	}
	if err := s.repo.SetCardIssued(ctx, m.ID, true); err != nil {
		return Member{}, err
	}
	m.IssuedCard = true
	m.Age = m.AgeAt(s.now())
	return m, nil
}

// WithoutCards returns members lacking cards and marks them all issued.
func (s *Service) WithoutCards(ctx context.Context) ([]Member, error) {
	members, err := s.repo.ListWithoutCards(ctx)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []Member{}, nil
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	if err := s.repo.MarkCardsIssued(ctx, ids); err != nil {
		return nil, err
	}
	for i := range members {
		members[i].IssuedCard = true
	}
	s.fillAges(members)
	return members, nil
}

func (s *Service) fillAges(members []Member) {
	now := s.now()
	for i := range members {
		members[i].Age = members[i].AgeAt(now)
	}
}

func (s *Service) validateInput(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("invalid input", nil)
	}
	fields := map[string]string{}
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		switch fe.Tag() {
		case "required":
			fields[name] = "is required"
		case "oneof":
			fields[name] = "must be one of: " + fe.Param()
		case "email":
			fields[name] = "must be a valid email"
		default:
			fields[name] = "is invalid"
		}
	}
	return apperr.Validation("invalid member input", fields)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
