package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/natebag/MLG-BETA/internal/catalog/domain"
	gatedomain "github.com/natebag/MLG-BETA/internal/gate/domain"
	ledgerdomain "github.com/natebag/MLG-BETA/internal/ledger/domain"
	"github.com/natebag/MLG-BETA/pkg/db/pagination"
)

type authorizeRequest struct {
	Principal  string `json:"principal"`
	ActionKind string `json:"actionKind"`
	Target     string `json:"target"`
	SelfTarget bool   `json:"selfTarget"`
	WantPaid   bool   `json:"wantPaid"`
}

type authorizeResponse struct {
	Status        gatedomain.Status        `json:"status"`
	Reason        gatedomain.Reason        `json:"reason,omitempty"`
	PaymentMode   ledgerdomain.PaymentMode `json:"paymentMode,omitempty"`
	AmountCharged int64                    `json:"amountCharged"`
	LedgerEntryID string                   `json:"ledgerEntryId,omitempty"`
	RemainingFree *int                     `json:"remainingFree,omitempty"`
	BurnReference string                   `json:"burnReference,omitempty"`
	IncidentID    string                   `json:"incidentId,omitempty"`
}

type actionKindResponse struct {
	Name                string `json:"name"`
	FreeQuotaPerPeriod  int    `json:"freeQuotaPerPeriod"`
	PeriodSeconds       int64  `json:"periodSeconds"`
	TokenCost           int64  `json:"tokenCost"`
	TokenCostDisplay    string `json:"tokenCostDisplay"`
	AllowsSelfTarget    bool   `json:"allowsSelfTarget"`
	TargetNormalization string `json:"targetNormalization,omitempty"`
}

func (s *Server) Authorize(c *gin.Context) {
	limitAuthorizeBody(c)
	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bodyReadError(err))
		return
	}

	req.ActionKind = strings.TrimSpace(req.ActionKind)
	if req.ActionKind == "" {
		AbortWithError(c, newValidationError("actionKind", "required", "actionKind is required"))
		return
	}
	c.Set("action_kind", req.ActionKind)

	result, err := s.gate.Authorize(c.Request.Context(), gatedomain.AuthorizeRequest{
		Principal:  req.Principal,
		ActionKind: req.ActionKind,
		Target:     req.Target,
		SelfTarget: req.SelfTarget,
		WantPaid:   req.WantPaid,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("outcome", outcomeLabel(result))
	c.JSON(authorizeStatus(result), newAuthorizeResponse(result))
}

func (s *Server) GetQuota(c *gin.Context) {
	principal := strings.TrimSpace(c.Param("principal"))
	actionKind := strings.TrimSpace(c.Param("actionKind"))
	c.Set("action_kind", actionKind)

	view, err := s.gate.Quota(c.Request.Context(), principal, actionKind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) ListLedger(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be a number"))
		return
	}

	actionKind := strings.TrimSpace(c.Param("actionKind"))
	c.Set("action_kind", actionKind)

	resp, err := s.gate.History(c.Request.Context(), ledgerdomain.ListRequest{
		Principal:  strings.TrimSpace(c.Param("principal")),
		ActionKind: actionKind,
		Pagination: page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetBalance(c *gin.Context) {
	view, err := s.gate.Balance(c.Request.Context(), c.Param("principal"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) ListActions(c *gin.Context) {
	kinds := s.catalog.All()
	resp := make([]actionKindResponse, 0, len(kinds))
	for _, kind := range kinds {
		resp = append(resp, newActionKindResponse(kind, s.cfg.TokenDecimals))
	}

	c.JSON(http.StatusOK, gin.H{"actions": resp})
}

func (s *Server) ListIncidents(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be a number"))
		return
	}

	resp, err := s.ledger.ListIncidents(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// authorizeStatus maps a result to its HTTP status. Insufficient funds is the
// only rejection with its own status so clients can prompt for a top up.
func authorizeStatus(result gatedomain.Result) int {
	switch {
	case result.Granted():
		return http.StatusOK
	case result.Reason == gatedomain.ReasonInsufficientFunds:
		return http.StatusPaymentRequired
	default:
		return http.StatusConflict
	}
}

func outcomeLabel(result gatedomain.Result) string {
	if result.Granted() {
		return string(gatedomain.StatusGranted)
	}
	return string(result.Reason)
}

func newAuthorizeResponse(result gatedomain.Result) authorizeResponse {
	resp := authorizeResponse{
		Status:        result.Status,
		Reason:        result.Reason,
		PaymentMode:   result.PaymentMode,
		AmountCharged: result.AmountCharged,
		RemainingFree: result.RemainingFree,
		BurnReference: result.BurnReference,
		IncidentID:    result.IncidentID,
	}
	if result.Entry != nil {
		resp.LedgerEntryID = result.Entry.ID.String()
	}
	return resp
}

func newActionKindResponse(kind catalogdomain.ActionKind, decimals int) actionKindResponse {
	return actionKindResponse{
		Name:                kind.Name,
		FreeQuotaPerPeriod:  kind.FreeQuotaPerPeriod,
		PeriodSeconds:       int64(kind.PeriodLength.Seconds()),
		TokenCost:           kind.TokenCost,
		TokenCostDisplay:    catalogdomain.FormatAmount(kind.TokenCost, decimals),
		AllowsSelfTarget:    kind.AllowsSelfTarget,
		TargetNormalization: string(kind.TargetNormalization),
	}
}
