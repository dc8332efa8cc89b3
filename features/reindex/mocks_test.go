package reindex_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"mercora/backend/features/reindex"
	"mercora/backend/internal/indexer"
)

type MockReindexer struct {
	mock.Mock
	started chan struct{}
	release chan struct{}
}

func (m *MockReindexer) ReindexAll(ctx context.Context) *indexer.Report {
	if m.started != nil {
		close(m.started)
		<-m.release
	}
	args := m.Called(ctx)
	return args.Get(0).(*indexer.Report)
}

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, run *reindex.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRepo) List(ctx context.Context, limit int) ([]reindex.Run, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reindex.Run), args.Error(1)
}

func (m *MockRepo) Latest(ctx context.Context) (*reindex.Run, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reindex.Run), args.Error(1)
}

func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}
