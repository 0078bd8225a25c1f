package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/natebag/MLG-BETA/internal/clock"
	ledgerdomain "github.com/natebag/MLG-BETA/internal/ledger/domain"
	"github.com/natebag/MLG-BETA/pkg/db"
	"github.com/natebag/MLG-BETA/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const historyPageSize = 100

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  ledgerdomain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  ledgerdomain.Repository
	clock clock.Clock
}

func NewService(p Params) ledgerdomain.Store {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

func (s *Service) Exists(ctx context.Context, principal, actionKind, target string) (bool, error) {
	exists, err := s.repo.Exists(ctx, s.db, principal, actionKind, target)
	if err != nil {
		return false, unavailable(err)
	}
	return exists, nil
}

// Append writes a new entry. A second append for the same tuple fails with
// ErrDuplicate, whatever the caller checked beforehand.
func (s *Service) Append(ctx context.Context, req ledgerdomain.AppendRequest) (ledgerdomain.LedgerEntry, error) {
	principal := strings.TrimSpace(req.Principal)
	if principal == "" {
		return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidPrincipal
	}
	actionKind := strings.TrimSpace(req.ActionKind)
	if actionKind == "" {
		return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidActionKind
	}
	if strings.TrimSpace(req.Target) == "" {
		return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidTarget
	}
	if !req.PaymentMode.Valid() {
		return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidPaymentMode
	}
	if req.AmountCharged < 0 || (req.PaymentMode == ledgerdomain.PaymentModeFree && req.AmountCharged != 0) {
		return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrInvalidAmount
	}

	now := s.clock.Now().UTC()
	occurredAt := req.OccurredAt.UTC()
	if req.OccurredAt.IsZero() {
		occurredAt = now
	}

	entry := ledgerdomain.LedgerEntry{
		ID:            s.genID.Generate(),
		Principal:     principal,
		ActionKind:    actionKind,
		Target:        req.Target,
		PaymentMode:   req.PaymentMode,
		AmountCharged: req.AmountCharged,
		OccurredAt:    occurredAt,
		CreatedAt:     now,
	}
	if len(req.Metadata) > 0 {
		entry.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return ledgerdomain.LedgerEntry{}, ledgerdomain.ErrDuplicate
		}
		s.log.Error("failed to append ledger entry",
			zap.String("principal", principal),
			zap.String("action_kind", actionKind),
			zap.Error(err),
		)
		return ledgerdomain.LedgerEntry{}, unavailable(err)
	}
	return entry, nil
}

func (s *Service) List(ctx context.Context, req ledgerdomain.ListRequest) (ledgerdomain.ListResponse, error) {
	principal := strings.TrimSpace(req.Principal)
	if principal == "" {
		return ledgerdomain.ListResponse{}, ledgerdomain.ErrInvalidPrincipal
	}

	cursor, err := decodePageToken(req.PageToken)
	if err != nil {
		return ledgerdomain.ListResponse{}, err
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, ledgerdomain.ListFilter{
		Principal:  principal,
		ActionKind: strings.TrimSpace(req.ActionKind),
	}, cursor, limit+1)
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrInvalidPageToken) {
			return ledgerdomain.ListResponse{}, err
		}
		return ledgerdomain.ListResponse{}, unavailable(err)
	}

	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(e *ledgerdomain.LedgerEntry) (string, error) {
		return pagination.EncodeCursor(pagination.Cursor{
			ID:         e.ID.String(),
			OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339Nano),
		})
	})
	if err != nil {
		return ledgerdomain.ListResponse{}, err
	}

	entries := make([]ledgerdomain.LedgerEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, *item)
	}
	return ledgerdomain.ListResponse{PageInfo: *pageInfo, Entries: entries}, nil
}

// QueryByPrincipal yields a principal's entries for one action kind in
// occurrence order, fetching pages as the caller ranges. Each range restarts
// from the first entry.
func (s *Service) QueryByPrincipal(ctx context.Context, principal, actionKind string) iter.Seq2[ledgerdomain.LedgerEntry, error] {
	return func(yield func(ledgerdomain.LedgerEntry, error) bool) {
		token := ""
		for {
			page, err := s.List(ctx, ledgerdomain.ListRequest{
				Principal:  principal,
				ActionKind: actionKind,
				Pagination: pagination.Pagination{PageToken: token, PageSize: historyPageSize},
			})
			if err != nil {
				yield(ledgerdomain.LedgerEntry{}, err)
				return
			}
			for _, entry := range page.Entries {
				if !yield(entry, nil) {
					return
				}
			}
			if !page.HasMore {
				return
			}
			token = page.NextPageToken
		}
	}
}

func (s *Service) RecordIncident(ctx context.Context, req ledgerdomain.RecordIncidentRequest) (ledgerdomain.Incident, error) {
	switch req.Reason {
	case ledgerdomain.IncidentPaidButDuplicate, ledgerdomain.IncidentPaidButUnrecorded:
	default:
		return ledgerdomain.Incident{}, ledgerdomain.ErrInvalidReason
	}
	if strings.TrimSpace(req.Principal) == "" {
		return ledgerdomain.Incident{}, ledgerdomain.ErrInvalidPrincipal
	}

	now := s.clock.Now().UTC()
	occurredAt := req.OccurredAt.UTC()
	if req.OccurredAt.IsZero() {
		occurredAt = now
	}

	incident := ledgerdomain.Incident{
		ID:            s.genID.Generate(),
		Principal:     strings.TrimSpace(req.Principal),
		ActionKind:    req.ActionKind,
		Target:        req.Target,
		AmountCharged: req.AmountCharged,
		BurnReference: req.BurnReference,
		Reason:        req.Reason,
		Detail:        req.Detail,
		OccurredAt:    occurredAt,
		CreatedAt:     now,
	}
	if err := s.repo.InsertIncident(ctx, s.db, &incident); err != nil {
		s.log.Error("failed to record ledger incident",
			zap.String("principal", incident.Principal),
			zap.String("action_kind", incident.ActionKind),
			zap.String("reason", string(incident.Reason)),
			zap.Error(err),
		)
		return ledgerdomain.Incident{}, unavailable(err)
	}
	return incident, nil
}

func (s *Service) ListIncidents(ctx context.Context, page pagination.Pagination) (ledgerdomain.ListIncidentsResponse, error) {
	cursor, err := decodePageToken(page.PageToken)
	if err != nil {
		return ledgerdomain.ListIncidentsResponse{}, err
	}

	limit := page.Limit()
	items, err := s.repo.ListIncidents(ctx, s.db, cursor, limit+1)
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrInvalidPageToken) {
			return ledgerdomain.ListIncidentsResponse{}, err
		}
		return ledgerdomain.ListIncidentsResponse{}, unavailable(err)
	}

	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(i *ledgerdomain.Incident) (string, error) {
		return pagination.EncodeCursor(pagination.Cursor{
			ID:         i.ID.String(),
			OccurredAt: i.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	})
	if err != nil {
		return ledgerdomain.ListIncidentsResponse{}, err
	}

	incidents := make([]ledgerdomain.Incident, 0, len(items))
	for _, item := range items {
		incidents = append(incidents, *item)
	}
	return ledgerdomain.ListIncidentsResponse{PageInfo: *pageInfo, Incidents: incidents}, nil
}

func decodePageToken(token string) (*pagination.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidPageToken
	}
	return cursor, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ledgerdomain.ErrStoreUnavailable, err)
}
