package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"expensecal/internal/amqp"
	"expensecal/internal/storage"
	"expensecal/internal/store"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	// dial opens the change-event publisher; replaced in tests.
	dial func(url, exchange, queue string) (notifier, error)
}

type notifier interface {
	store.Notifier
	Close() error
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
		dial: func(url, exchange, queue string) (notifier, error) {
			return amqp.NewClient(url, exchange, queue)
		},
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		p   storage.Persister
		err error
	)
	switch config.Type {
	case MemoryBackend:
		p = storage.NewMemoryPersister()
		f.logger.Info("Initialized memory backend")
	case FileBackend:
		p, err = storage.NewFilePersister(config.DataDirectory)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file backend: %w", err)
		}
		f.logger.Info("Initialized file backend", "data_directory", config.DataDirectory)
	case SQLiteBackend:
		p, err = storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	result := &BackendResult{Persister: p, Cleanup: p.Close}

	// Change events are optional: a broker that cannot be reached only
	// disables publishing.
	if config.AMQPURL != "" {
		n, err := f.dial(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change events", "error", err)
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Notifier = n
			result.Cleanup = func() error {
				return errors.Join(n.Close(), p.Close())
			}
		}
	}

	return result, nil
}

// OpenStore creates the backend described by config and loads the record set
// from it. The returned cleanup releases the backend.
func OpenStore(ctx context.Context, f Factory, config Config) (*store.Store, CleanupFunc, error) {
	res, err := f.CreateBackend(ctx, config)
	if err != nil {
		return nil, nil, err
	}

	var opts []store.Option
	if res.Notifier != nil {
		opts = append(opts, store.WithNotifier(res.Notifier))
	}
	s := store.New(res.Persister, opts...)
	if err := s.Load(ctx); err != nil {
		res.Cleanup()
		return nil, nil, err
	}
	return s, res.Cleanup, nil
}
