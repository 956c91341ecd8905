package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tiny-bank/internal/domain"
	"tiny-bank/internal/service"
	"tiny-bank/internal/storage"
)

var (
	// ErrExportNotFound is returned for unknown export IDs.
	ErrExportNotFound = errors.New("export not found")
	// ErrNotStarted is returned when jobs are enqueued before Start.
	ErrNotStarted = errors.New("exporter not started")
)

// Manager renders statements in the background and archives them in object storage.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	Enqueue(ctx context.Context, username string) (*domain.StatementExport, error)
	Get(ctx context.Context, id string) (*domain.StatementExport, error)
	Cancel(ctx context.Context, id string) error
}

type Config struct {
	Bucket        string
	KeyPrefix     string
	MaxConcurrent int
	// Retention is how long finished jobs stay queryable.
	Retention time.Duration
	Logger    *logrus.Logger
}

const defaultRetention = 24 * time.Hour

type manager struct {
	cfg     Config
	ledger  service.LedgerService
	storage storage.Service

	sem     chan struct{}
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
	jobs    map[string]*domain.StatementExport
	active  map[string]*jobHandle
}

type jobHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, ledger service.LedgerService, store storage.Service) Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &manager{
		cfg:     cfg,
		ledger:  ledger,
		storage: store,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		jobs:    make(map[string]*domain.StatementExport),
		active:  make(map[string]*jobHandle),
	}
}

func (m *manager) Start(ctx context.Context) error {
	if m.cfg.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}
	if m.storage == nil {
		return fmt.Errorf("storage service is required")
	}
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()
	m.cfg.Logger.Infof("statement exporter started, bucket: %s", m.cfg.Bucket)
	return nil
}

func (m *manager) Shutdown() {
	m.mu.Lock()
	m.stopped = true
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("statement exporter stopped")
}

// Enqueue checks that the account exists and schedules an export of its current state.
func (m *manager) Enqueue(ctx context.Context, username string) (*domain.StatementExport, error) {
	if !m.accepting() {
		return nil, ErrNotStarted
	}
	if _, err := m.ledger.GetAccount(ctx, username); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	job := &domain.StatementExport{
		ID:        id,
		Username:  username,
		Status:    domain.ExportStatusPending,
		Key:       ObjectKey(m.cfg.KeyPrefix, username, id),
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	if m.ctx == nil || m.stopped {
		m.mu.Unlock()
		return nil, ErrNotStarted
	}
	m.pruneLocked(now)
	m.jobs[id] = job
	jobCtx, handle := m.trackLocked(id)
	snapshot := *job
	m.mu.Unlock()

	go m.work(jobCtx, id, handle)
	return &snapshot, nil
}

func (m *manager) accepting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx != nil && !m.stopped
}

// pruneLocked drops finished jobs older than the retention window.
func (m *manager) pruneLocked(now time.Time) {
	for id, job := range m.jobs {
		if _, running := m.active[id]; running {
			continue
		}
		finished := job.Status == domain.ExportStatusCompleted || job.Status == domain.ExportStatusFailed
		if finished && now.Sub(job.UpdatedAt) > m.cfg.Retention {
			delete(m.jobs, id)
		}
	}
}

func (m *manager) Get(_ context.Context, id string) (*domain.StatementExport, error) {
	if job := m.snapshot(id); job != nil {
		return job, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrExportNotFound, id)
}

func (m *manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	handle, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	handle.cancel()

	select {
	case <-handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trackLocked registers the job with the wait group while m.mu is held, so
// Shutdown never waits on a group that is still growing.
func (m *manager) trackLocked(id string) (context.Context, *jobHandle) {
	jobCtx, cancel := context.WithCancel(m.ctx)
	handle := &jobHandle{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.active[id] = handle
	m.wg.Add(1)
	return jobCtx, handle
}

func (m *manager) work(jobCtx context.Context, id string, handle *jobHandle) {
	defer m.wg.Done()
	defer func() {
		handle.cancel()
		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()
		close(handle.done)
	}()
	select {
	case <-jobCtx.Done():
		m.fail(id, jobCtx.Err())
		return
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
		m.run(jobCtx, id)
	}
}

func (m *manager) run(ctx context.Context, id string) {
	job := m.update(id, func(j *domain.StatementExport) {
		j.Status = domain.ExportStatusRunning
	})
	logger := m.cfg.Logger.WithFields(logrus.Fields{"export_id": id, "username": job.Username})

	account, err := m.ledger.GetAccount(ctx, job.Username)
	if err != nil {
		m.fail(id, fmt.Errorf("load account: %w", err))
		return
	}
	txs, err := m.ledger.GetTransactions(ctx, job.Username)
	if err != nil {
		m.fail(id, fmt.Errorf("load transactions: %w", err))
		return
	}
	body, err := renderStatement(account, txs, time.Now().UTC())
	if err != nil {
		m.fail(id, fmt.Errorf("render statement: %w", err))
		return
	}

	location, err := m.storage.PutObject(ctx, bytes.NewReader(body), storage.PutOptions{
		Bucket:      m.cfg.Bucket,
		Key:         job.Key,
		ContentType: "application/json",
	})
	if err != nil {
		m.fail(id, fmt.Errorf("upload: %w", err))
		return
	}

	m.update(id, func(j *domain.StatementExport) {
		completed := time.Now().UTC()
		j.Status = domain.ExportStatusCompleted
		j.Location = location
		j.CompletedAt = &completed
	})
	logger.Infof("statement archived to %s (%d transactions)", location, len(txs))
}

func (m *manager) fail(id string, failErr error) {
	msg := failErr.Error()
	m.update(id, func(j *domain.StatementExport) {
		j.Status = domain.ExportStatusFailed
		j.ErrorMessage = msg
	})
	m.cfg.Logger.WithField("export_id", id).Error(msg)
}

func (m *manager) update(id string, fn func(*domain.StatementExport)) domain.StatementExport {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[id]
	fn(job)
	job.UpdatedAt = time.Now().UTC()
	return *job
}

func (m *manager) snapshot(id string) *domain.StatementExport {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	cp := *job
	return &cp
}

// UserPrefix is the object key prefix under which a user's statements live.
func UserPrefix(keyPrefix, username string) string {
	prefix := strings.Trim(keyPrefix, "/")
	if prefix == "" {
		return url.PathEscape(username) + "/"
	}
	return prefix + "/" + url.PathEscape(username) + "/"
}

// ObjectKey is the storage key of one statement export.
func ObjectKey(keyPrefix, username, id string) string {
	return UserPrefix(keyPrefix, username) + id + ".json"
}

var _ Manager = (*manager)(nil)
var _ service.StatementArchiver = (*manager)(nil)
