package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiny-bank/internal/domain"
	"tiny-bank/internal/repository/memory"
	"tiny-bank/internal/service"
	"tiny-bank/internal/storage"
)

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
	block   bool
}

func (s *fakeStorage) PutObject(ctx context.Context, body io.Reader, opts storage.PutOptions) (string, error) {
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[opts.Key] = data
	return "s3://" + opts.Bucket + "/" + opts.Key, nil
}

func (s *fakeStorage) ListObjects(context.Context, string, string) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func (s *fakeStorage) GetObjectURL(context.Context, string, string, time.Duration) (string, error) {
	return "", nil
}

func (s *fakeStorage) object(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key]
}

func newLedger(t *testing.T) service.LedgerService {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	ledger := service.NewLedgerService(memory.NewAccountRepository(), memory.NewTransactionRepository(), logger)
	ctx := context.Background()
	require.NoError(t, ledger.CreateAccount(ctx, "alice"))
	require.NoError(t, ledger.CreateAccount(ctx, "bob"))
	require.NoError(t, ledger.Deposit(ctx, "alice", decimal.RequireFromString("100.00")))
	_, err := ledger.Transfer(ctx, "alice", "bob", decimal.RequireFromString("30.5"))
	require.NoError(t, err)
	return ledger
}

func newStartedManager(t *testing.T, ledger service.LedgerService, store storage.Service) Manager {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	m := NewManager(Config{Bucket: "bank", KeyPrefix: "/statements/", MaxConcurrent: 1, Logger: logger}, ledger, store)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Shutdown)
	return m
}

func waitForStatus(t *testing.T, m Manager, id string, status domain.ExportStatus) *domain.StatementExport {
	t.Helper()
	var job *domain.StatementExport
	require.Eventually(t, func() bool {
		var err error
		job, err = m.Get(context.Background(), id)
		return err == nil && job.Status == status
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestManager_ArchivesStatement(t *testing.T) {
	store := &fakeStorage{}
	m := newStartedManager(t, newLedger(t), store)

	job, err := m.Enqueue(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", job.Username)
	assert.Equal(t, "statements/alice/"+job.ID+".json", job.Key)

	done := waitForStatus(t, m, job.ID, domain.ExportStatusCompleted)
	assert.Equal(t, "s3://bank/"+job.Key, done.Location)
	require.NotNil(t, done.CompletedAt)

	var doc Statement
	require.NoError(t, json.Unmarshal(store.object(job.Key), &doc))
	assert.Equal(t, "alice", doc.Username)
	assert.Equal(t, "69.50", doc.Balance)
	require.Len(t, doc.Transactions, 2)
	assert.Equal(t, "DEPOSIT", doc.Transactions[0].Type)
	assert.Equal(t, "WITHDRAW", doc.Transactions[1].Type)
	assert.Equal(t, "30.50", doc.Transactions[1].Amount)
	assert.Equal(t, "bob", doc.Transactions[1].Counterparty)
}

func TestManager_RejectsUnknownAccountAndUnstarted(t *testing.T) {
	ledger := newLedger(t)
	logger, _ := logtest.NewNullLogger()

	idle := NewManager(Config{Bucket: "bank", Logger: logger}, ledger, &fakeStorage{})
	_, err := idle.Enqueue(context.Background(), "alice")
	require.ErrorIs(t, err, ErrNotStarted)

	require.Error(t, NewManager(Config{Logger: logger}, ledger, &fakeStorage{}).Start(context.Background()))

	m := newStartedManager(t, ledger, &fakeStorage{})
	_, err = m.Enqueue(context.Background(), "ghost")
	require.ErrorIs(t, err, service.ErrAccountNotFound)

	_, err = m.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrExportNotFound)
}

func TestManager_UploadFailureMarksJobFailed(t *testing.T) {
	m := newStartedManager(t, newLedger(t), &fakeStorage{err: errors.New("access denied")})

	job, err := m.Enqueue(context.Background(), "bob")
	require.NoError(t, err)

	failed := waitForStatus(t, m, job.ID, domain.ExportStatusFailed)
	assert.Contains(t, failed.ErrorMessage, "access denied")
}

func TestManager_CancelRunningJob(t *testing.T) {
	m := newStartedManager(t, newLedger(t), &fakeStorage{block: true})

	job, err := m.Enqueue(context.Background(), "alice")
	require.NoError(t, err)
	waitForStatus(t, m, job.ID, domain.ExportStatusRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Cancel(ctx, job.ID))

	got, err := m.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExportStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, context.Canceled.Error())

	// cancelling a finished job is a no-op
	require.NoError(t, m.Cancel(ctx, job.ID))
}

func TestManager_RejectsEnqueueAfterShutdown(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	m := NewManager(Config{Bucket: "bank", Logger: logger}, newLedger(t), &fakeStorage{})
	require.NoError(t, m.Start(context.Background()))
	m.Shutdown()

	_, err := m.Enqueue(context.Background(), "alice")
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestManager_PrunesFinishedJobs(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	m := NewManager(Config{Bucket: "bank", Retention: time.Millisecond, Logger: logger}, newLedger(t), &fakeStorage{})
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Shutdown)

	first, err := m.Enqueue(context.Background(), "alice")
	require.NoError(t, err)
	waitForStatus(t, m, first.ID, domain.ExportStatusCompleted)
	time.Sleep(5 * time.Millisecond)

	second, err := m.Enqueue(context.Background(), "bob")
	require.NoError(t, err)

	_, err = m.Get(context.Background(), first.ID)
	require.ErrorIs(t, err, ErrExportNotFound)
	_, err = m.Get(context.Background(), second.ID)
	require.NoError(t, err)
}

func TestObjectKeys(t *testing.T) {
	assert.Equal(t, "statements/a%2Fb/", UserPrefix("/statements/", "a/b"))
	assert.Equal(t, "alice/", UserPrefix("", "alice"))
	assert.Equal(t, "s/alice/42.json", ObjectKey("s", "alice", "42"))
}
