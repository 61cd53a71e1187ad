package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/vdbload/client"
	vderrors "github.com/23skdu/vdbload/internal/errors"
	"github.com/23skdu/vdbload/internal/logging"
	"github.com/23skdu/vdbload/internal/metrics"
)

// stubAPI is an in-memory TransactionAPI with injectable failures.
type stubAPI struct {
	mu       sync.Mutex
	nextID   int
	creates  int
	commits  map[string]int
	aborts   map[string]int
	upserts  int
	upserted map[uint64]int
	abortCtx []error

	createErr func() error
	upsertErr func(first uint64) error
	commitErr func(txnID string) error
	abortErr  func(txnID string) error
	onCommit  func(txnID string)
	delay     time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newStubAPI() *stubAPI {
	return &stubAPI{
		commits:  make(map[string]int),
		aborts:   make(map[string]int),
		upserted: make(map[uint64]int),
	}
}

func (s *stubAPI) CreateTransaction(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		if err := s.createErr(); err != nil {
			return "", err
		}
	}
	s.nextID++
	return fmt.Sprintf("txn-%d", s.nextID), nil
}

func (s *stubAPI) Upsert(ctx context.Context, _, _ string, vectors []client.Vector) error {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxInFlight.Load()
		if n <= m || s.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.upsertErr != nil {
		if err := s.upsertErr(vectors[0].ID); err != nil {
			return err
		}
	}
	for _, v := range vectors {
		s.upserted[v.ID]++
	}
	return nil
}

func (s *stubAPI) Commit(_ context.Context, _, txnID string) error {
	s.mu.Lock()
	s.commits[txnID]++
	hook := s.onCommit
	var err error
	if s.commitErr != nil {
		err = s.commitErr(txnID)
	}
	s.mu.Unlock()
	if hook != nil {
		hook(txnID)
	}
	return err
}

func (s *stubAPI) Abort(ctx context.Context, _, txnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborts[txnID]++
	s.abortCtx = append(s.abortCtx, ctx.Err())
	if s.abortErr != nil {
		return s.abortErr(txnID)
	}
	return nil
}

func (s *stubAPI) totals() (commits, aborts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.commits {
		commits += n
	}
	for _, n := range s.aborts {
		aborts += n
	}
	return commits, aborts
}

func makeVectors(n int) []client.Vector {
	out := make([]client.Vector, n)
	for i := range out {
		out[i] = client.Vector{ID: uint64(i), Values: []float32{float32(i), 1}}
	}
	return out
}

type sliceSource [][]client.Vector

func (s sliceSource) Transaction(_ context.Context, txn int) ([]client.Vector, error) {
	if txn >= len(s) || s[txn] == nil {
		return nil, fmt.Errorf("no vectors for transaction %d", txn)
	}
	return s[txn], nil
}

func newTestDriver(t *testing.T, api TransactionAPI, workers, batchSize int) *Driver {
	t.Helper()
	d, err := New(api, Config{Workers: workers, BatchSize: batchSize, AbortTimeout: time.Second}, logging.DiscardLogger())
	require.NoError(t, err)
	return d
}

func TestNew_Validation(t *testing.T) {
	api := newStubAPI()

	_, err := New(api, Config{Workers: 0, BatchSize: 1}, nil)
	assert.True(t, errors.Is(err, vderrors.ErrValidation))

	_, err = New(api, Config{Workers: 1, BatchSize: 0}, nil)
	assert.True(t, errors.Is(err, vderrors.ErrValidation))

	_, err = New(nil, DefaultConfig(), nil)
	assert.True(t, errors.Is(err, vderrors.ErrValidation))

	d, err := New(api, Config{Workers: 2, BatchSize: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().AbortTimeout, d.cfg.AbortTimeout)
}

func TestRunTransaction_AllBatchesSucceed(t *testing.T) {
	api := newStubAPI()
	api.delay = time.Millisecond
	d := newTestDriver(t, api, 4, 7)

	before := testutil.ToFloat64(metrics.TransactionsTotal.WithLabelValues("committed"))

	report, err := d.RunTransaction(context.Background(), "testdb", makeVectors(1000))
	require.NoError(t, err)

	commits, aborts := api.totals()
	assert.Equal(t, 1, commits)
	assert.Equal(t, 0, aborts)
	assert.Equal(t, 1, api.commits["txn-1"])

	assert.Equal(t, 143, api.upserts)
	assert.Len(t, api.upserted, 1000)
	for id, n := range api.upserted {
		assert.Equal(t, 1, n, "vector %d upserted %d times", id, n)
	}
	assert.LessOrEqual(t, api.maxInFlight.Load(), int32(4))

	assert.True(t, report.Committed)
	assert.False(t, report.Aborted)
	assert.Equal(t, "txn-1", report.ID)
	assert.Equal(t, 143, report.Batches)
	assert.Equal(t, 1000, report.Vectors)
	assert.Empty(t, report.FailedBatches)
	assert.Positive(t, report.Elapsed)
	assert.Equal(t, "committed", report.Outcome())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.TransactionsTotal.WithLabelValues("committed")))
}

func TestRunTransaction_BatchFailureAborts(t *testing.T) {
	api := newStubAPI()
	api.upsertErr = func(first uint64) error {
		if first == 30 || first == 50 {
			return vderrors.New(vderrors.ErrorTypeBatchUpsert, client.OpUpsert, "rejected").WithStatus(503)
		}
		return nil
	}
	d := newTestDriver(t, api, 3, 10)

	report, err := d.RunTransaction(context.Background(), "testdb", makeVectors(100))
	require.Error(t, err)

	commits, aborts := api.totals()
	assert.Equal(t, 0, commits)
	assert.Equal(t, 1, aborts)

	// siblings were not cancelled
	assert.Equal(t, 10, api.upserts)

	assert.True(t, errors.Is(err, vderrors.ErrBatchUpsert))
	var bue *vderrors.BatchUpsertError
	require.True(t, errors.As(err, &bue))
	assert.Equal(t, 503, bue.StatusCode)
	assert.Contains(t, []int{3, 5}, bue.Index)

	assert.Equal(t, []int{3, 5}, report.FailedBatches)
	assert.False(t, report.Committed)
	assert.True(t, report.Aborted)
	assert.Equal(t, "aborted", report.Outcome())
	assert.Contains(t, report.String(), "failed batches [3 5]")
}

func TestRunTransaction_CreateFailure(t *testing.T) {
	api := newStubAPI()
	api.createErr = func() error {
		return vderrors.New(vderrors.ErrorTypeTransactionCreate, client.OpCreateTransaction, "rejected").WithStatus(500)
	}
	d := newTestDriver(t, api, 2, 10)

	report, err := d.RunTransaction(context.Background(), "testdb", makeVectors(20))
	require.Error(t, err)
	assert.True(t, errors.Is(err, vderrors.ErrTransactionCreate))
	assert.Equal(t, 500, vderrors.StatusCode(err))

	commits, aborts := api.totals()
	assert.Zero(t, commits)
	assert.Zero(t, aborts)
	assert.Zero(t, api.upserts)
	assert.Equal(t, "create_failed", report.Outcome())
}

func TestRunTransaction_UntypedErrorsAreClassified(t *testing.T) {
	api := newStubAPI()
	api.createErr = func() error { return errors.New("boom") }
	d := newTestDriver(t, api, 1, 10)

	_, err := d.RunTransaction(context.Background(), "testdb", makeVectors(5))
	assert.True(t, errors.Is(err, vderrors.ErrTransactionCreate))

	api.createErr = nil
	api.commitErr = func(string) error { return errors.New("boom") }
	_, err = d.RunTransaction(context.Background(), "testdb", makeVectors(5))
	assert.True(t, errors.Is(err, vderrors.ErrTransactionCommit))
}

func TestRunTransaction_CommitFailureAborts(t *testing.T) {
	api := newStubAPI()
	api.commitErr = func(string) error {
		return vderrors.New(vderrors.ErrorTypeTransactionCommit, client.OpCommit, "rejected").WithStatus(409)
	}
	d := newTestDriver(t, api, 2, 10)

	report, err := d.RunTransaction(context.Background(), "testdb", makeVectors(25))
	require.Error(t, err)
	assert.True(t, errors.Is(err, vderrors.ErrTransactionCommit))

	commits, aborts := api.totals()
	assert.Equal(t, 1, commits)
	assert.Equal(t, 1, aborts)
	assert.True(t, report.Aborted)
	assert.False(t, report.Committed)
	assert.Nil(t, report.AbortErr)
}

func TestRunTransaction_AbortFailureIsNotEscalated(t *testing.T) {
	api := newStubAPI()
	api.upsertErr = func(uint64) error { return errors.New("upsert failed") }
	api.abortErr = func(string) error {
		return vderrors.New(vderrors.ErrorTypeTransactionAbort, client.OpAbort, "rejected").WithStatus(500)
	}
	d := newTestDriver(t, api, 2, 10)

	report, err := d.RunTransaction(context.Background(), "testdb", makeVectors(20))
	require.Error(t, err)

	// the batch failure decides the outcome, not the abort failure
	assert.True(t, errors.Is(err, vderrors.ErrBatchUpsert))
	assert.False(t, errors.Is(err, vderrors.ErrTransactionAbort))
	assert.True(t, errors.Is(report.AbortErr, vderrors.ErrTransactionAbort))
	assert.Equal(t, "abort_failed", report.Outcome())
}

func TestRunTransaction_AbortSurvivesCancellation(t *testing.T) {
	api := newStubAPI()
	d := newTestDriver(t, api, 2, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := d.RunTransaction(ctx, "testdb", makeVectors(10))
	require.Error(t, err)
	assert.Equal(t, []int{0, 1}, report.FailedBatches)
	assert.True(t, report.Aborted)

	require.Len(t, api.abortCtx, 1)
	assert.NoError(t, api.abortCtx[0])
}

func TestRunTransaction_EmptyVectorList(t *testing.T) {
	api := newStubAPI()
	d := newTestDriver(t, api, 2, 5)

	report, err := d.RunTransaction(context.Background(), "testdb", nil)
	require.NoError(t, err)
	assert.True(t, report.Committed)
	assert.Zero(t, report.Batches)
	assert.Zero(t, api.upserts)
}

func TestRun_CommitAndAbortFailureDoesNotStopLoop(t *testing.T) {
	api := newStubAPI()
	api.commitErr = func(id string) error {
		if id == "txn-1" {
			return errors.New("commit failed")
		}
		return nil
	}
	api.abortErr = func(id string) error {
		return errors.New("abort failed")
	}
	d := newTestDriver(t, api, 4, 10)

	vectors := makeVectors(60)
	run := d.Run(context.Background(), "testdb", 2, sliceSource{vectors[:30], vectors[30:]})

	require.Len(t, run.Transactions, 2)
	first, second := run.Transactions[0], run.Transactions[1]

	assert.True(t, errors.Is(first.Err, vderrors.ErrTransactionCommit))
	assert.True(t, errors.Is(first.AbortErr, vderrors.ErrTransactionAbort))
	assert.Equal(t, "abort_failed", first.Outcome())

	assert.True(t, second.Committed)
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, 1, api.commits["txn-2"])
	assert.Zero(t, api.aborts["txn-2"])

	assert.Equal(t, 1, run.Committed())
	assert.Equal(t, 1, run.Failed())
	assert.Equal(t, 30, run.VectorsCommitted())
	assert.False(t, run.Interrupted)
}

func TestRun_SourceFailureContinues(t *testing.T) {
	api := newStubAPI()
	d := newTestDriver(t, api, 2, 10)

	run := d.Run(context.Background(), "testdb", 2, sliceSource{nil, makeVectors(10)})

	require.Len(t, run.Transactions, 2)
	assert.Error(t, run.Transactions[0].Err)
	assert.Equal(t, "source_failed", run.Transactions[0].Outcome())
	assert.True(t, run.Transactions[1].Committed)
	assert.Equal(t, 1, api.creates)
}

func TestRun_CancelStopsBeforeNextTransaction(t *testing.T) {
	api := newStubAPI()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api.onCommit = func(string) { cancel() }
	d := newTestDriver(t, api, 2, 10)

	vectors := makeVectors(30)
	run := d.Run(ctx, "testdb", 3, sliceSource{vectors[:10], vectors[10:20], vectors[20:]})

	require.Len(t, run.Transactions, 1)
	assert.True(t, run.Transactions[0].Committed)
	assert.True(t, run.Interrupted)
	assert.Equal(t, 1, api.creates)
}

func TestRun_ZeroTransactions(t *testing.T) {
	d := newTestDriver(t, newStubAPI(), 1, 1)
	run := d.Run(context.Background(), "testdb", 0, sliceSource{})
	assert.Empty(t, run.Transactions)
	assert.Zero(t, run.Throughput())
}
