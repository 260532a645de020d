package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"civiccite/internal/config"
	"civiccite/internal/logger"
	"civiccite/internal/storage"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockPutter struct {
	mock.Mock
}

func (m *mockPutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

type failingSink struct{}

func (failingSink) Name() string                        { return "broken" }
func (failingSink) Write(context.Context, Record) error { return errors.New("disk full") }

type recordingSink struct {
	got []Record
}

func (s *recordingSink) Name() string { return "recording" }
func (s *recordingSink) Write(_ context.Context, rec Record) error {
	s.got = append(s.got, rec)
	return nil
}

type fakeInserter struct {
	got storage.QueryAuditRecord
}

func (f *fakeInserter) Insert(_ context.Context, rec storage.QueryAuditRecord) error {
	f.got = rec
	return nil
}

func sampleRecord() Record {
	return Record{
		RequestID:     "req-1",
		SessionHash:   "hash:abc",
		Language:      "en",
		Channel:       "sms",
		Resolution:    "answer",
		UsedChunkIDs:  []string{"c1", "c2"},
		TopSimilarity: 0.82,
		TimingsMS:     map[string]int64{"retrieval": 12},
		PolicyVersion: "v1",
		CreatedAt:     time.Date(2026, 10, 14, 23, 59, 0, 0, time.UTC),
	}
}

func TestS3SinkKeyLayout(t *testing.T) {
	m := &mockPutter{}
	m.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		if *in.Bucket != "audit-bucket" || *in.Key != "audits/2026-10-14/req-1.json" {
			return false
		}
		b, _ := io.ReadAll(in.Body)
		var rec Record
		return json.Unmarshal(b, &rec) == nil && rec.RequestID == "req-1"
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	s := NewS3Sink(m, "audit-bucket", "/audits/")
	require.NoError(t, s.Write(context.Background(), sampleRecord()))
	m.AssertExpectations(t)
}

func TestEmitterSwallowsSinkFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rec := &recordingSink{}
	e := NewEmitter(logger.NewWithCore(core, "salt"), time.Second, failingSink{}, rec)

	e.Emit(context.Background(), Record{RequestID: "r"})

	require.Len(t, rec.got, 1, "later sinks still run")
	assert.NotNil(t, rec.got[0].UsedChunkIDs)
	assert.False(t, rec.got[0].CreatedAt.IsZero())
	require.Equal(t, 1, logs.FilterMessage("audit sink failed").Len())
}

func TestEmitDetachesFromCancelledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var seen error
	sink := sinkFunc(func(ctx context.Context, _ Record) error {
		seen = ctx.Err()
		return nil
	})
	NewEmitter(nil, time.Second, sink).Emit(ctx, Record{RequestID: "r"})
	require.NoError(t, seen)
}

type sinkFunc func(context.Context, Record) error

func (f sinkFunc) Name() string                                { return "func" }
func (f sinkFunc) Write(ctx context.Context, rec Record) error { return f(ctx, rec) }

func TestAsyncEmitDoesNotWaitForSlowSink(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var got []string
	sink := sinkFunc(func(_ context.Context, rec Record) error {
		<-release
		mu.Lock()
		got = append(got, rec.RequestID)
		mu.Unlock()
		return nil
	})
	e := NewEmitter(nil, time.Minute, sink).Async(4, 1)

	returned := make(chan struct{})
	go func() {
		e.Emit(context.Background(), Record{RequestID: "r1"})
		e.Emit(context.Background(), Record{RequestID: "r2"})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a slow sink")
	}

	close(release)
	require.NoError(t, e.Close(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"r1", "r2"}, got)
}

func TestAsyncEmitFallsBackInlineWhenClosed(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(nil, time.Second, sink).Async(1, 1)
	require.NoError(t, e.Close(context.Background()))
	require.NoError(t, e.Close(context.Background()), "close is idempotent")

	e.Emit(context.Background(), Record{RequestID: "late"})
	require.Len(t, sink.got, 1)
	assert.Equal(t, "late", sink.got[0].RequestID)
}

func TestCloseHonoursDeadline(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	sink := sinkFunc(func(context.Context, Record) error {
		<-block
		return nil
	})
	e := NewEmitter(nil, time.Minute, sink).Async(1, 1)
	e.Emit(context.Background(), Record{RequestID: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, e.Close(ctx), context.DeadlineExceeded)
}

func TestPostgresSinkMapsFields(t *testing.T) {
	ins := &fakeInserter{}
	require.NoError(t, NewPostgresSink(ins).Write(context.Background(), sampleRecord()))
	assert.Equal(t, "req-1", ins.got.RequestID)
	assert.Equal(t, []string{"c1", "c2"}, ins.got.UsedChunkIDs)
	assert.Equal(t, int64(12), ins.got.TimingsMS["retrieval"])
}

func TestFileSinkWritesPerDay(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewFileSink(dir).Write(context.Background(), sampleRecord()))
	_, err := os.Stat(filepath.Join(dir, "2026-10-14", "req-1.json"))
	require.NoError(t, err)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Config{AuditSinks: "log|file|log", AuditFileDir: t.TempDir()}
	e, err := NewFromConfig(context.Background(), cfg, nil, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"log", "file"}, e.Sinks())

	_, err = NewFromConfig(context.Background(), config.Config{AuditSinks: "postgres"}, nil, logger.NewNop())
	require.Error(t, err)

	_, err = NewFromConfig(context.Background(), config.Config{AuditSinks: "kafka"}, nil, logger.NewNop())
	require.Error(t, err)
}
