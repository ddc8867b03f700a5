package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"membership/internal/apperr"
	"membership/internal/attendance"
	"membership/internal/member"
	"membership/internal/presence"
)

// MemberHandler serves the member registry and the kiosk check-in surface.
type MemberHandler struct {
	members  *member.Service
	presence *presence.Coordinator
	log      *zap.Logger
}

// NewMemberHandler wires the registry endpoints.
func NewMemberHandler(members *member.Service, coord *presence.Coordinator, log *zap.Logger) *MemberHandler {
	return &MemberHandler{members: members, presence: coord, log: log}
}

type registerMemberRequest struct {
	FullName       string `json:"fullName"`
	Gender         string `json:"gender"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	DateOfBirth    string `json:"dateOfBirth"`
	Department     string `json:"department"`
	MembershipType string `json:"membershipType"`
}

// Register handles POST /api/members.
func (h *MemberHandler) Register(c *gin.Context) {
	var req registerMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		respondErr(c, h.log, apperr.Validation("invalid member input", map[string]string{
			"dateOfBirth": "must be RFC3339 or YYYY-MM-DD"}))
		return
	}
	m, err := h.members.Register(c.Request.Context(), member.RegisterInput{
		FullName:       req.FullName,
		Gender:         req.Gender,
		Phone:          req.Phone,
		Email:          req.Email,
		DateOfBirth:    dob,
		Department:     req.Department,
		MembershipType: req.MembershipType,
	})
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondCreated(c, "member registered successfully", m)
}

// List handles GET /api/members with filtering and pagination.
func (h *MemberHandler) List(c *gin.Context) {
	page, limit := pageParams(c)
	f := member.ListFilter{
		Status:         c.Query("status"),
		Department:     c.Query("department"),
		MembershipType: c.Query("membershipType"),
		Page:           page,
		Limit:          limit,
	}
	members, total, err := h.members.List(c.Request.Context(), f)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondPage(c, members, f.Page, f.Limit, total)
}

// Get handles GET /api/members/:memberId.
func (h *MemberHandler) Get(c *gin.Context) {
	m, err := h.members.Get(c.Request.Context(), c.Param("memberId"))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", m)
}

type updateMemberRequest struct {
	FullName       *string `json:"fullName"`
	Gender         *string `json:"gender"`
	Phone          *string `json:"phone"`
	Email          *string `json:"email"`
	DateOfBirth    *string `json:"dateOfBirth"`
	Department     *string `json:"department"`
	MembershipType *string `json:"membershipType"`
	Status         *string `json:"status"`
	IssuedCard     *bool   `json:"issuedCard"`
}

// Update handles PUT /api/members/:memberId.
func (h *MemberHandler) Update(c *gin.Context) {
	var req updateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	in := member.UpdateInput{
		FullName:       req.FullName,
		Gender:         req.Gender,
		Phone:          req.Phone,
		Email:          req.Email,
		Department:     req.Department,
		MembershipType: req.MembershipType,
		Status:         req.Status,
		IssuedCard:     req.IssuedCard,
	}
	if req.DateOfBirth != nil {
		dob, err := parseDate(*req.DateOfBirth)
		if err != nil {
			respondErr(c, h.log, apperr.Validation("invalid member input", map[string]string{
				"dateOfBirth": "must be RFC3339 or YYYY-MM-DD"}))
			return
		}
		in.DateOfBirth = &dob
	}
	m, err := h.members.Update(c.Request.Context(), c.Param("memberId"), in)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "member updated successfully", m)
}

// Delete handles DELETE /api/members/:memberId, cascading ledger removal.
func (h *MemberHandler) Delete(c *gin.Context) {
	if err := h.members.Delete(c.Request.Context(), c.Param("memberId")); err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "member and attendance records deleted successfully", nil)
}

// Present handles GET /api/members/present.
func (h *MemberHandler) Present(c *gin.Context) {
	members, err := h.members.Present(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", gin.H{"count": len(members), "members": members})
}

// Stats handles GET /api/members/stats.
func (h *MemberHandler) Stats(c *gin.Context) {
	stats, err := h.members.Stats(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", stats)
}

// IssueCard handles POST /api/members/:memberId/issue-card.
func (h *MemberHandler) IssueCard(c *gin.Context) {
	m, err := h.members.IssueCard(c.Request.Context(), c.Param("memberId"))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "card issued successfully", m)
}

// WithoutCards handles GET /api/members/without-cards: returns members lacking
// cards and marks them issued in the same call.
func (h *MemberHandler) WithoutCards(c *gin.Context) {
	members, err := h.members.WithoutCards(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", gin.H{"count": len(members), "members": members})
}

type transitionRequest struct {
	MemberID string               `json:"memberId"`
	Location *attendance.GeoPoint `json:"location"`
}

// CheckIn handles POST /api/members/check-in (kiosk surface).
func (h *MemberHandler) CheckIn(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	if req.MemberID == "" {
		respondErr(c, h.log, apperr.Validation("memberId is required", nil))
		return
	}
	rec, err := h.presence.CheckIn(c.Request.Context(), req.MemberID, req.Location)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "checked in successfully", rec)
}

// CheckOut handles POST /api/members/check-out (kiosk surface).
func (h *MemberHandler) CheckOut(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	if req.MemberID == "" {
		respondErr(c, h.log, apperr.Validation("memberId is required", nil))
		return
	}
	rec, err := h.presence.CheckOut(c.Request.Context(), req.MemberID, req.Location)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "checked out successfully", rec)
}
