package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/port"
)

var (
	ErrDuplicateInFlight        = errors.New("mutation is already being applied")
	ErrConflictRetriesExhausted = errors.New("concurrent updates conflicted, retries exhausted")
	ErrMissingUser              = fmt.Errorf("%w: user id is required", domain.ErrValidation)
)

const defaultMaxAttempts = 5

type ReconcileService struct {
	repo     port.InventoryRepository
	ledger   port.IdempotencyLedger
	activity port.ActivityLogger
	logger   *slog.Logger

	lowStockThreshold int
	maxAttempts       int
	now               func() time.Time
}

type Option func(*ReconcileService)

// WithLedger enables replay deduplication by mutation id.
func WithLedger(l port.IdempotencyLedger) Option {
	return func(s *ReconcileService) { s.ledger = l }
}

func WithActivityLogger(a port.ActivityLogger) Option {
	return func(s *ReconcileService) { s.activity = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *ReconcileService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithLowStockThreshold(n int) Option {
	return func(s *ReconcileService) { s.lowStockThreshold = n }
}

// WithMaxAttempts bounds how often a reconcile is retried after losing an
// optimistic lock or a unique-key race.
func WithMaxAttempts(n int) Option {
	return func(s *ReconcileService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *ReconcileService) { s.now = now }
}

func NewReconcileService(repo port.InventoryRepository, opts ...Option) *ReconcileService {
	s := &ReconcileService{
		repo:              repo,
		logger:            slog.Default(),
		lowStockThreshold: domain.DefaultLowStockThreshold,
		maxAttempts:       defaultMaxAttempts,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconcile applies one increment or decrement to the zone-scoped record of
// a barcode and returns the authoritative record.
func (s *ReconcileService) Reconcile(ctx context.Context, userID string, req domain.ReconcileRequest) (*domain.ReconcileResult, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrMissingUser
	}

	if s.ledger == nil || req.MutationID == "" {
		return s.reconcile(ctx, userID, req)
	}

	key := idempotencyKey(userID, req.MutationID)

	claimed, stored, err := s.ledger.Claim(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !claimed {
		if stored == nil {
			return nil, ErrDuplicateInFlight
		}
		var res domain.ReconcileResult
		if err := json.Unmarshal(stored, &res); err != nil {
			return nil, fmt.Errorf("decode stored result: %w", err)
		}
		s.logger.Info("replayed mutation", "mutation_id", req.MutationID, "barcode", req.Barcode, "zone", res.Zone)
		return &res, nil
	}

	res, err := s.reconcile(ctx, userID, req)
	if err != nil {
		if relErr := s.ledger.Release(ctx, key); relErr != nil {
			s.logger.Warn("failed to release idempotency claim", "key", key, "error", relErr)
		}
		return nil, err
	}

	data, err := json.Marshal(res)
	if err == nil {
		err = s.complete(ctx, key, data)
	}
	if err != nil {
		// the mutation is applied; replays see an in-flight claim until the claim TTL lapses
		s.logger.Warn("failed to store idempotent result", "key", key, "error", err)
	}

	return res, nil
}

// complete stores the result, trying once more on failure.
func (s *ReconcileService) complete(ctx context.Context, key string, data []byte) error {
	err := s.ledger.Complete(ctx, key, data)
	if err == nil {
		return nil
	}
	s.logger.Debug("storing idempotent result failed, retrying", "key", key, "error", err)
	return s.ledger.Complete(ctx, key, data)
}

func (s *ReconcileService) reconcile(ctx context.Context, userID string, req domain.ReconcileRequest) (*domain.ReconcileResult, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		res, err := s.apply(ctx, userID, req)
		if err == nil {
			s.recordActivity(ctx, userID, req.Action, res)
			return res, nil
		}
		if !errors.Is(err, port.ErrOptimisticLock) && !errors.Is(err, port.ErrRecordExists) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Debug("reconcile conflict, retrying",
			"barcode", req.Barcode, "zone", req.TargetZone(), "attempt", attempt, "error", err)
	}

	return nil, fmt.Errorf("%w: barcode %s zone %s", ErrConflictRetriesExhausted, req.Barcode, req.TargetZone())
}

func (s *ReconcileService) apply(ctx context.Context, userID string, req domain.ReconcileRequest) (*domain.ReconcileResult, error) {
	zone := req.TargetZone()

	records, err := s.repo.ListByBarcode(ctx, userID, req.Barcode)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}

	if len(records) == 0 {
		created, err := s.repo.Insert(ctx, s.newRecord(userID, req, zone, nil))
		if err != nil {
			return nil, fmt.Errorf("create item: %w", err)
		}
		s.logger.Info("created item", "barcode", req.Barcode, "zone", zone, "quantity", created.Quantity)
		return domain.NewReconcileResult(created, true), nil
	}

	if existing := findZone(records, zone); existing != nil {
		updated, err := s.repo.UpdateQuantity(ctx, existing.ID, req.Action.Apply(existing.Quantity), existing.Version)
		if err != nil {
			return nil, fmt.Errorf("update item: %w", err)
		}
		s.logger.Info("updated item", "barcode", req.Barcode, "zone", zone, "quantity", updated.Quantity)
		return domain.NewReconcileResult(updated, false), nil
	}

	source := productSource(records)
	created, err := s.repo.Insert(ctx, s.newRecord(userID, req, zone, source))
	if err != nil {
		return nil, fmt.Errorf("create item in zone: %w", err)
	}
	s.logger.Info("created item in new zone",
		"barcode", req.Barcode, "zone", zone, "inherited_from", source.Zone, "quantity", created.Quantity)
	return domain.NewReconcileResult(created, true), nil
}

// newRecord builds a record for zone. Product fields come from source when
// set, then from the request, then from the barcode.
func (s *ReconcileService) newRecord(userID string, req domain.ReconcileRequest, zone string, source *domain.CanonicalRecord) domain.CanonicalRecord {
	var inherited domain.ProductData
	if source != nil {
		inherited = domain.ProductData{Product: source.Product, Colour: source.Colour, Size: source.Size}
	}

	now := s.now().UTC()
	return domain.CanonicalRecord{
		ID:                uuid.New().String(),
		UserID:            userID,
		Barcode:           req.Barcode,
		Product:           firstNonBlank(inherited.Product, req.ProductData.Product, domain.SyntheticProductPrefix+req.Barcode),
		Colour:            firstNonBlank(inherited.Colour, req.ProductData.Colour),
		Size:              firstNonBlank(inherited.Size, req.ProductData.Size),
		Zone:              zone,
		Quantity:          req.Action.InitialQuantity(),
		LowStockThreshold: s.lowStockThreshold,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *ReconcileService) recordActivity(ctx context.Context, userID string, action domain.Action, res *domain.ReconcileResult) {
	if s.activity == nil {
		return
	}
	err := s.activity.RecordActivity(ctx, domain.ActivityEntry{
		UserID:    userID,
		Action:    action,
		Barcode:   res.Barcode,
		Zone:      res.Zone,
		Quantity:  res.Quantity,
		IsNewItem: res.IsNewItem,
		At:        s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to record activity", "barcode", res.Barcode, "error", err)
	}
}

func findZone(records []domain.CanonicalRecord, zone string) *domain.CanonicalRecord {
	for i := range records {
		if records[i].Zone == zone {
			return &records[i]
		}
	}
	return nil
}

// productSource prefers a record with a real product name.
func productSource(records []domain.CanonicalRecord) *domain.CanonicalRecord {
	for i := range records {
		if !records[i].HasSyntheticProduct() {
			return &records[i]
		}
	}
	return &records[0]
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func idempotencyKey(userID, mutationID string) string {
	return fmt.Sprintf("mutation:%s:%s", userID, mutationID)
}
