package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/natebag/MLG-BETA/internal/catalog"
	catalogdomain "github.com/natebag/MLG-BETA/internal/catalog/domain"
	"github.com/natebag/MLG-BETA/internal/clock"
	"github.com/natebag/MLG-BETA/internal/config"
	gatedomain "github.com/natebag/MLG-BETA/internal/gate/domain"
	"github.com/natebag/MLG-BETA/internal/gate/events"
	ledgerdomain "github.com/natebag/MLG-BETA/internal/ledger/domain"
	obscontext "github.com/natebag/MLG-BETA/internal/observability/context"
	obslogger "github.com/natebag/MLG-BETA/internal/observability/logger"
	obsmetrics "github.com/natebag/MLG-BETA/internal/observability/metrics"
	"github.com/natebag/MLG-BETA/internal/observability/tracing"
	quotadomain "github.com/natebag/MLG-BETA/internal/quota/domain"
	walletdomain "github.com/natebag/MLG-BETA/internal/wallet/domain"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultWalletTimeout = 5 * time.Second
	// unknownActionLabel replaces action kinds missing from the catalog in
	// metrics and spans.
	unknownActionLabel = "unknown"
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Clock   clock.Clock `optional:"true"`
	Catalog *catalog.Catalog
	Tracker quotadomain.Tracker
	Ledger  ledgerdomain.Store
	Oracle  walletdomain.BalanceOracle
	Burner  walletdomain.BurnExecutor
	Events  *events.Hub         `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log           *zap.Logger
	clock         clock.Clock
	catalog       *catalog.Catalog
	tracker       quotadomain.Tracker
	ledger        ledgerdomain.Store
	oracle        walletdomain.BalanceOracle
	burner        walletdomain.BurnExecutor
	events        *events.Hub
	metrics       *obsmetrics.Metrics
	tracer        trace.Tracer
	walletTimeout time.Duration
	decimals      int
}

func NewService(p Params) gatedomain.Engine {
	timeout := p.Config.Wallet.Timeout
	if timeout <= 0 {
		timeout = defaultWalletTimeout
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		log:           p.Log.Named("gate.engine"),
		clock:         clk,
		catalog:       p.Catalog,
		tracker:       p.Tracker,
		ledger:        p.Ledger,
		oracle:        p.Oracle,
		burner:        p.Burner,
		events:        p.Events,
		metrics:       p.Metrics,
		tracer:        otel.Tracer("mlgledger/gate"),
		walletTimeout: timeout,
		decimals:      p.Config.TokenDecimals,
	}
}

// attempt carries one authorization through its states.
type attempt struct {
	req       gatedomain.AuthorizeRequest
	kind      catalogdomain.ActionKind
	target    string
	now       time.Time
	state     gatedomain.State
	periodKey string
	log       *zap.Logger
}

func (a *attempt) transition(next gatedomain.State) {
	a.log.Debug("authorization transition",
		zap.String("from", string(a.state)),
		zap.String("to", string(next)),
	)
	a.state = next
}

// Authorize runs the gate for one request. Business rejections come back as
// a rejected Result; only validation and infrastructure failures return an
// error.
func (s *Service) Authorize(ctx context.Context, req gatedomain.AuthorizeRequest) (gatedomain.Result, error) {
	ctx, span := s.tracer.Start(ctx, "gate.Authorize", trace.WithAttributes(
		attribute.String("mlg.action_kind", s.actionLabel(req.ActionKind)),
		attribute.Bool("mlg.want_paid", req.WantPaid),
	))
	defer span.End()

	result, err := s.authorize(ctx, req)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "authorization failed")
		return gatedomain.Result{}, err
	}

	outcome := string(result.Status)
	if result.Reason != "" {
		outcome = string(result.Reason)
	}
	span.SetAttributes(attribute.String("mlg.outcome", outcome))
	s.metrics.RecordAuthorization(ctx, s.actionLabel(result.ActionKind), outcome, string(result.PaymentMode))
	s.publish(req, result)
	return result, nil
}

func (s *Service) authorize(ctx context.Context, req gatedomain.AuthorizeRequest) (gatedomain.Result, error) {
	req.Principal = strings.TrimSpace(req.Principal)
	if req.Principal == "" || utf8.RuneCountInString(req.Principal) > ledgerdomain.MaxPrincipalLength {
		return gatedomain.Result{}, gatedomain.ErrInvalidPrincipal
	}

	now := req.Now
	if now.IsZero() {
		now = s.clock.Now()
	}

	ctx = obscontext.WithPrincipal(ctx, req.Principal)
	a := &attempt{
		req:   req,
		now:   now.UTC(),
		state: gatedomain.StateRequested,
		log:   obslogger.WithAction(obslogger.WithContext(ctx, s.log), req.ActionKind),
	}

	kind, err := s.catalog.Lookup(req.ActionKind)
	if err != nil {
		return s.reject(a, gatedomain.ReasonUnknownAction), nil
	}
	a.kind = kind

	// Rejected before any burn; the ledger could never store it.
	a.target = kind.NormalizeTarget(req.Target)
	if a.target == "" || utf8.RuneCountInString(a.target) > ledgerdomain.MaxTargetLength {
		return gatedomain.Result{}, gatedomain.ErrInvalidTarget
	}

	if !kind.AllowsSelfTarget && req.SelfTarget {
		return s.reject(a, gatedomain.ReasonSelfTargetForbidden), nil
	}

	// Advisory only; the unique index behind Append is the real guard.
	exists, err := s.ledger.Exists(ctx, req.Principal, kind.Name, a.target)
	if err != nil {
		return gatedomain.Result{}, err
	}
	if exists {
		return s.reject(a, gatedomain.ReasonAlreadyRecorded), nil
	}
	a.transition(gatedomain.StateDuplicateChecked)

	if !req.WantPaid {
		return s.authorizeFree(ctx, a)
	}
	return s.authorizePaid(ctx, a)
}

func (s *Service) authorizeFree(ctx context.Context, a *attempt) (gatedomain.Result, error) {
	grant, err := s.tracker.Consume(ctx, a.req.Principal, a.kind, a.now)
	if err != nil {
		return gatedomain.Result{}, err
	}
	if !grant.Granted {
		result := s.reject(a, gatedomain.ReasonQuotaExhausted)
		result.PaymentMode = ledgerdomain.PaymentModeFree
		result.RemainingFree = intPtr(0)
		return result, nil
	}
	a.periodKey = grant.PeriodKey
	a.transition(gatedomain.StateFreeGranted)

	entry, err := s.ledger.Append(ctx, ledgerdomain.AppendRequest{
		Principal:   a.req.Principal,
		ActionKind:  a.kind.Name,
		Target:      a.target,
		PaymentMode: ledgerdomain.PaymentModeFree,
		OccurredAt:  a.now,
	})
	if err != nil {
		// The free use was never recorded, so hand it back.
		s.releaseQuota(ctx, a)
		if errors.Is(err, ledgerdomain.ErrDuplicate) {
			return s.reject(a, gatedomain.ReasonAlreadyRecorded), nil
		}
		return gatedomain.Result{}, err
	}
	a.transition(gatedomain.StateRecorded)

	result := s.complete(a, entry)
	result.RemainingFree = intPtr(grant.Remaining)
	return result, nil
}

func (s *Service) authorizePaid(ctx context.Context, a *attempt) (gatedomain.Result, error) {
	a.transition(gatedomain.StatePaidRequired)
	cost := a.kind.TokenCost

	balance, err := s.getBalance(ctx, a.req.Principal)
	if err != nil {
		a.log.Warn("balance lookup failed", zap.Error(err))
		a.transition(gatedomain.StatePaymentFailed)
		return s.rejectPaid(a, gatedomain.ReasonPaymentFailed), nil
	}
	if balance < cost {
		return s.rejectPaid(a, gatedomain.ReasonInsufficientFunds), nil
	}

	idempotencyKey := ulid.Make().String()
	receipt := walletdomain.BurnReceipt{}
	if cost > 0 {
		receipt, err = s.burn(ctx, walletdomain.BurnRequest{
			Principal:      a.req.Principal,
			Amount:         cost,
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			a.log.Warn("token burn failed",
				zap.Int64("amount", cost),
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err),
			)
			a.transition(gatedomain.StatePaymentFailed)
			return s.rejectPaid(a, gatedomain.ReasonPaymentFailed), nil
		}
		s.metrics.RecordTokensBurned(ctx, a.kind.Name, cost)
	}
	a.transition(gatedomain.StatePaid)

	metadata := map[string]any{}
	if receipt.Reference != "" {
		metadata[ledgerdomain.MetadataBurnReference] = receipt.Reference
		metadata[ledgerdomain.MetadataIdempotencyKey] = idempotencyKey
	}

	entry, err := s.ledger.Append(ctx, ledgerdomain.AppendRequest{
		Principal:     a.req.Principal,
		ActionKind:    a.kind.Name,
		Target:        a.target,
		PaymentMode:   ledgerdomain.PaymentModePaid,
		AmountCharged: cost,
		Metadata:      metadata,
		OccurredAt:    a.now,
	})
	if err == nil {
		a.transition(gatedomain.StateRecorded)
		result := s.complete(a, entry)
		result.BurnReference = receipt.Reference
		return result, nil
	}

	if errors.Is(err, ledgerdomain.ErrDuplicate) {
		if cost == 0 {
			return s.reject(a, gatedomain.ReasonAlreadyRecorded), nil
		}
		return s.paidButDuplicate(ctx, a, receipt), nil
	}

	if cost > 0 {
		a.log.Error("burn executed but ledger append failed",
			zap.Int64("amount", cost),
			zap.String("burn_reference", receipt.Reference),
			zap.Error(err),
		)
		s.recordIncident(ctx, a, receipt, ledgerdomain.IncidentPaidButUnrecorded, err.Error())
	}
	return gatedomain.Result{}, err
}

// paidButDuplicate handles a burn that lost the race to another request for
// the same tuple. The burn cannot be undone here; it is logged, counted and
// stored as an incident for manual compensation.
func (s *Service) paidButDuplicate(ctx context.Context, a *attempt, receipt walletdomain.BurnReceipt) gatedomain.Result {
	a.log.Error("tokens burned for an already recorded action",
		zap.String("target", a.target),
		zap.Int64("amount", a.kind.TokenCost),
		zap.String("burn_reference", receipt.Reference),
	)
	s.metrics.RecordPaidDuplicate(ctx, a.kind.Name)
	incident := s.recordIncident(ctx, a, receipt, ledgerdomain.IncidentPaidButDuplicate, "")

	result := s.reject(a, gatedomain.ReasonPaidButDuplicate)
	result.PaymentMode = ledgerdomain.PaymentModePaid
	result.AmountCharged = a.kind.TokenCost
	result.BurnReference = receipt.Reference
	if incident != nil {
		result.IncidentID = incident.ID.String()
	}
	return result
}

func (s *Service) recordIncident(ctx context.Context, a *attempt, receipt walletdomain.BurnReceipt, reason ledgerdomain.IncidentReason, detail string) *ledgerdomain.Incident {
	incident, err := s.ledger.RecordIncident(context.WithoutCancel(ctx), ledgerdomain.RecordIncidentRequest{
		Principal:     a.req.Principal,
		ActionKind:    a.kind.Name,
		Target:        a.target,
		AmountCharged: a.kind.TokenCost,
		BurnReference: receipt.Reference,
		Reason:        reason,
		Detail:        detail,
		OccurredAt:    a.now,
	})
	if err != nil {
		a.log.Error("failed to record ledger incident",
			zap.String("reason", string(reason)),
			zap.String("burn_reference", receipt.Reference),
			zap.Error(err),
		)
		return nil
	}
	return &incident
}

func (s *Service) releaseQuota(ctx context.Context, a *attempt) {
	if err := s.tracker.Release(context.WithoutCancel(ctx), a.req.Principal, a.kind, a.periodKey); err != nil {
		a.log.Warn("failed to release free quota", zap.String("period_key", a.periodKey), zap.Error(err))
	}
}

func (s *Service) getBalance(ctx context.Context, principal string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.walletTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "wallet.GetBalance")
	defer span.End()

	balance, err := s.oracle.GetBalance(ctx, principal)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "balance lookup failed")
		return 0, err
	}
	return balance, nil
}

func (s *Service) burn(ctx context.Context, req walletdomain.BurnRequest) (walletdomain.BurnReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.walletTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "wallet.Burn", trace.WithAttributes(
		attribute.Int64("mlg.amount", req.Amount),
	))
	defer span.End()

	receipt, err := s.burner.Burn(ctx, req)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "burn failed")
		return walletdomain.BurnReceipt{}, err
	}
	return receipt, nil
}

func (s *Service) complete(a *attempt, entry ledgerdomain.LedgerEntry) gatedomain.Result {
	a.transition(gatedomain.StateCompleted)
	a.log.Info("authorization granted",
		zap.String("payment_mode", string(entry.PaymentMode)),
		zap.Int64("amount_charged", entry.AmountCharged),
		zap.String("ledger_entry_id", entry.ID.String()),
	)
	return gatedomain.Result{
		Status:        gatedomain.StatusGranted,
		State:         a.state,
		ActionKind:    entry.ActionKind,
		PaymentMode:   entry.PaymentMode,
		AmountCharged: entry.AmountCharged,
		Entry:         &entry,
	}
}

func (s *Service) reject(a *attempt, reason gatedomain.Reason) gatedomain.Result {
	a.transition(gatedomain.StateRejected)
	a.log.Info("authorization rejected", zap.String("reason", string(reason)))
	kindName := a.kind.Name
	if kindName == "" {
		kindName = strings.ToLower(strings.TrimSpace(a.req.ActionKind))
	}
	return gatedomain.Result{
		Status:     gatedomain.StatusRejected,
		Reason:     reason,
		State:      a.state,
		ActionKind: kindName,
	}
}

// actionLabel bounds telemetry cardinality to the catalog.
func (s *Service) actionLabel(name string) string {
	kind, err := s.catalog.Lookup(name)
	if err != nil {
		return unknownActionLabel
	}
	return kind.Name
}

func (s *Service) rejectPaid(a *attempt, reason gatedomain.Reason) gatedomain.Result {
	result := s.reject(a, reason)
	result.PaymentMode = ledgerdomain.PaymentModePaid
	return result
}

func (s *Service) publish(req gatedomain.AuthorizeRequest, result gatedomain.Result) {
	if s.events == nil || result.Reason == gatedomain.ReasonUnknownAction {
		return
	}
	event := events.Event{
		ActionKind:    result.ActionKind,
		Principal:     strings.TrimSpace(req.Principal),
		Status:        string(result.Status),
		Reason:        string(result.Reason),
		PaymentMode:   string(result.PaymentMode),
		AmountCharged: result.AmountCharged,
		OccurredAt:    s.clock.Now().UTC().Format(time.RFC3339Nano),
	}
	if result.Entry != nil {
		event.LedgerEntryID = result.Entry.ID.String()
		event.OccurredAt = result.Entry.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	s.events.Publish(event)
}

// Quota reports the free quota left for principal in the current period.
func (s *Service) Quota(ctx context.Context, principal, actionKind string) (quotadomain.View, error) {
	kind, err := s.catalog.Lookup(actionKind)
	if err != nil {
		return quotadomain.View{}, err
	}
	return s.tracker.Peek(ctx, principal, kind, s.clock.Now())
}

// History lists recorded entries for a principal and action kind.
func (s *Service) History(ctx context.Context, req ledgerdomain.ListRequest) (ledgerdomain.ListResponse, error) {
	kind, err := s.catalog.Lookup(req.ActionKind)
	if err != nil {
		return ledgerdomain.ListResponse{}, err
	}
	req.ActionKind = kind.Name
	return s.ledger.List(ctx, req)
}

// Balance reads the principal's spendable balance from the wallet backend.
func (s *Service) Balance(ctx context.Context, principal string) (gatedomain.BalanceView, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return gatedomain.BalanceView{}, gatedomain.ErrInvalidPrincipal
	}
	balance, err := s.getBalance(ctx, principal)
	if err != nil {
		return gatedomain.BalanceView{}, fmt.Errorf("%w: %w", walletdomain.ErrUnavailable, err)
	}
	return gatedomain.BalanceView{
		Principal: principal,
		Balance:   balance,
		Display:   catalogdomain.FormatAmount(balance, s.decimals),
		Decimals:  s.decimals,
	}, nil
}

func intPtr(v int) *int {
	return &v
}
