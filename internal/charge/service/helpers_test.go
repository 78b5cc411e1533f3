package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/franqio/royaltyd/internal/charge/adapters"
	"github.com/franqio/royaltyd/internal/charge/domain"
	chargerepo "github.com/franqio/royaltyd/internal/charge/repository"
	"github.com/franqio/royaltyd/internal/clock"
	"github.com/franqio/royaltyd/internal/config"
	establishmentrepo "github.com/franqio/royaltyd/internal/establishment/repository"
	"github.com/franqio/royaltyd/internal/metrics"
	"github.com/franqio/royaltyd/internal/notify"
	payablerepo "github.com/franqio/royaltyd/internal/payable/repository"
	royaltydomain "github.com/franqio/royaltyd/internal/royalty/domain"
	royaltyrepo "github.com/franqio/royaltyd/internal/royalty/repository"
)

type sinkStub struct {
	mu            sync.Mutex
	payablesPaid  []notify.PayablePaidIntent
	notifications []notify.NotificationIntent
}

func (s *sinkStub) MarkPayablePaid(ctx context.Context, intent notify.PayablePaidIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payablesPaid = append(s.payablesPaid, intent)
	return nil
}

func (s *sinkStub) Notify(intent notify.NotificationIntent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, intent)
}

func (s *sinkStub) paidCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payablesPaid)
}

func (s *sinkStub) templates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.notifications))
	for _, intent := range s.notifications {
		out = append(out, intent.Template)
	}
	return out
}

type fakeAdapter struct {
	mu          sync.Mutex
	issueCalls  int
	issueRef    string
	issueErr    error
	queryStatus domain.ObservedStatus
	queryErr    error
}

func (a *fakeAdapter) IssueCharge(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error) {
	a.mu.Lock()
	a.issueCalls++
	a.mu.Unlock()
	if a.issueErr != nil {
		return nil, a.issueErr
	}
	return &domain.IssueResult{
		ExternalReference: a.issueRef,
		RawMetadata:       json.RawMessage(`{"digitable_line":"0001"}`),
	}, nil
}

func (a *fakeAdapter) QueryStatus(ctx context.Context, externalReference string) (domain.ObservedStatus, json.RawMessage, error) {
	if a.queryErr != nil {
		return "", nil, a.queryErr
	}
	return a.queryStatus, json.RawMessage(`{"status":"` + string(a.queryStatus) + `"}`), nil
}

func (a *fakeAdapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	return nil
}

func (a *fakeAdapter) ParseWebhook(ctx context.Context, payload []byte) (*domain.PaymentEvent, error) {
	return nil, domain.ErrInvalidPayload
}

func (a *fakeAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.issueCalls
}

type fakeFactory struct {
	gateway string
	adapter *fakeAdapter
}

func (f *fakeFactory) Gateway() string { return f.gateway }

func (f *fakeFactory) NewAdapter(cfg domain.AdapterConfig) (domain.GatewayAdapter, error) {
	return f.adapter, nil
}

type fixture struct {
	svc     domain.Service
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	sink    *sinkStub
	adapter *fakeAdapter
}

func setupChargeService(t *testing.T) *fixture {
	t.Helper()

	node := mustNode(t)
	db := openTestDB(t)
	adapter := &fakeAdapter{issueRef: "ext-001", queryStatus: domain.ObservedPending}
	sink := &sinkStub{}
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	holder := config.NewStaticGatewaySettingsHolder(config.DefaultGatewaySettings())
	registry := adapters.NewRegistry(&fakeFactory{gateway: domain.GatewayBankSlip, adapter: adapter})

	establishmentRepo := establishmentrepo.Provide()
	source := NewAdapterSource(AdapterSourceParams{
		DB:       db,
		Repo:     establishmentRepo,
		Registry: registry,
		Settings: holder,
	})

	svc := New(Params{
		DB:               db,
		Log:              zap.NewNop(),
		GenID:            node,
		Clock:            fake,
		Repo:             chargerepo.Provide(),
		RoyaltyRepo:      royaltyrepo.Provide(),
		EstablishmentRpo: establishmentRepo,
		PayableRepo:      payablerepo.Provide(),
		Adapters:         source,
		Settings:         holder,
		Sink:             sink,
		Metrics:          metrics.New(),
	})

	return &fixture{
		svc:     svc,
		db:      db,
		node:    node,
		clock:   fake,
		sink:    sink,
		adapter: adapter,
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	prepareSchema(t, db)
	return db
}

func prepareSchema(t *testing.T, db *gorm.DB) {
	t.Helper()

	statements := []string{
		`CREATE TABLE establishments (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			document TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			gateway TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE gateway_configs (
			gateway TEXT PRIMARY KEY,
			config JSON NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE royalties (
			id BIGINT PRIMARY KEY,
			establishment_id BIGINT NOT NULL,
			period_start DATETIME NOT NULL,
			period_end DATETIME NOT NULL,
			gross_revenue BIGINT NOT NULL,
			royalty_percent DOUBLE PRECISION NOT NULL,
			royalty_amount BIGINT NOT NULL,
			due_date DATETIME NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE charges (
			id BIGINT PRIMARY KEY,
			royalty_id BIGINT NOT NULL,
			establishment_id BIGINT NOT NULL,
			gateway TEXT NOT NULL,
			external_reference TEXT NOT NULL,
			amount BIGINT NOT NULL,
			due_date DATETIME NOT NULL,
			status TEXT NOT NULL,
			raw_metadata JSON,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_charges_gateway_ref ON charges (gateway, external_reference)`,
		`CREATE TABLE payment_events (
			id BIGINT PRIMARY KEY,
			gateway TEXT NOT NULL,
			event_id TEXT NOT NULL,
			source TEXT NOT NULL,
			charge_id BIGINT NOT NULL,
			observed TEXT NOT NULL,
			result_status TEXT,
			payload JSON,
			received_at DATETIME NOT NULL,
			processed_at DATETIME
		)`,
		`CREATE UNIQUE INDEX ux_payment_events_gateway_event ON payment_events (gateway, event_id)`,
		`CREATE TABLE payables (
			id BIGINT PRIMARY KEY,
			royalty_id BIGINT NOT NULL,
			charge_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			due_date DATETIME NOT NULL,
			status TEXT NOT NULL,
			paid_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func seedEstablishment(t *testing.T, db *gorm.DB, id snowflake.ID, gateway string) {
	t.Helper()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := db.Exec(
		`INSERT INTO establishments (id, name, document, email, address, gateway, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, "Pizzaria Central", "12.345.678/0001-90", "owner@central.example", "Av. Paulista 1000", gateway, true, now, now,
	).Error; err != nil {
		t.Fatalf("seed establishment: %v", err)
	}
}

func seedGatewayConfig(t *testing.T, db *gorm.DB, gateway string) {
	t.Helper()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := db.Exec(
		`INSERT INTO gateway_configs (gateway, config, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		gateway,
		`{"base_url":"https://gw.example","api_key":"key","webhook_secret":"secret"}`,
		true, now, now,
	).Error; err != nil {
		t.Fatalf("seed gateway config: %v", err)
	}
}

func seedRoyalty(t *testing.T, db *gorm.DB, royalty *royaltydomain.Royalty) {
	t.Helper()
	if royalty.RoyaltyPercent == 0 {
		royalty.RoyaltyPercent = 5.0
	}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if royalty.PeriodStart.IsZero() {
		royalty.PeriodStart = now.AddDate(0, -1, 0)
		royalty.PeriodEnd = now
	}
	if royalty.DueDate.IsZero() {
		royalty.DueDate = now.AddDate(0, 0, 10)
	}
	royalty.CreatedAt = now
	royalty.UpdatedAt = now
	if err := db.Exec(
		`INSERT INTO royalties (id, establishment_id, period_start, period_end, gross_revenue,
			royalty_percent, royalty_amount, due_date, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		royalty.ID, royalty.EstablishmentID, royalty.PeriodStart, royalty.PeriodEnd,
		royalty.GrossRevenue, royalty.RoyaltyPercent, royalty.RoyaltyAmount,
		royalty.DueDate, royalty.Status, royalty.CreatedAt, royalty.UpdatedAt,
	).Error; err != nil {
		t.Fatalf("seed royalty: %v", err)
	}
}

func seedCharge(t *testing.T, db *gorm.DB, charge *domain.Charge) {
	t.Helper()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if charge.DueDate.IsZero() {
		charge.DueDate = now.AddDate(0, 0, 10)
	}
	charge.CreatedAt = now
	charge.UpdatedAt = now
	if err := db.Exec(
		`INSERT INTO charges (id, royalty_id, establishment_id, gateway, external_reference,
			amount, due_date, status, raw_metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		charge.ID, charge.RoyaltyID, charge.EstablishmentID, charge.Gateway,
		charge.ExternalReference, charge.Amount, charge.DueDate, charge.Status,
		charge.RawMetadata, charge.CreatedAt, charge.UpdatedAt,
	).Error; err != nil {
		t.Fatalf("seed charge: %v", err)
	}
}

func chargeStatus(t *testing.T, db *gorm.DB, id snowflake.ID) domain.ChargeStatus {
	t.Helper()
	var status string
	if err := db.Raw(`SELECT status FROM charges WHERE id = ?`, id).Scan(&status).Error; err != nil {
		t.Fatalf("charge status: %v", err)
	}
	return domain.ChargeStatus(status)
}

func royaltyStatus(t *testing.T, db *gorm.DB, id snowflake.ID) royaltydomain.RoyaltyStatus {
	t.Helper()
	var status string
	if err := db.Raw(`SELECT status FROM royalties WHERE id = ?`, id).Scan(&status).Error; err != nil {
		t.Fatalf("royalty status: %v", err)
	}
	return royaltydomain.RoyaltyStatus(status)
}

func countEvents(t *testing.T, db *gorm.DB) int {
	t.Helper()
	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM payment_events`).Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return count
}

func countCharges(t *testing.T, db *gorm.DB) int {
	t.Helper()
	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM charges`).Scan(&count).Error; err != nil {
		t.Fatalf("count charges: %v", err)
	}
	return count
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}
