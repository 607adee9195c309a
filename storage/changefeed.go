package storage

import (
	"context"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"study-planner/domain"
)

// Change operations.
const (
	OpAppended = "appended"
	OpRemoved  = "removed"
)

// Change announces one successful mutation of a collection.
type Change struct {
	ID       string        `json:"id"`
	Kind     domain.Kind   `json:"kind"`
	Op       string        `json:"op"`
	Position int           `json:"position"`
	Record   domain.Record `json:"record"`
	Count    int           `json:"count"`
	Time     time.Time     `json:"time"`
}

// QueueClient is the subset of azqueue.QueueClient the change feed uses.
type QueueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// NewQueueClient connects to the change queue using a storage connection string.
func NewQueueClient(connStr, queue string) (*azqueue.QueueClient, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 30 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	return azqueue.NewQueueClientFromConnectionString(connStr, queue, &opts)
}

// ChangeFeedConfig tunes the publishing workers.
type ChangeFeedConfig struct {
	Workers int
	Buffer  int
	Timeout time.Duration
}

// ChangeFeed publishes changes to a queue from a small worker pool. When the
// buffer is full the change is sent inline by the caller.
type ChangeFeed struct {
	queue   QueueClient
	logger  *log.Logger
	timeout time.Duration

	mu     sync.RWMutex
	jobs   chan Change
	closed bool
	wg     sync.WaitGroup
}

func NewChangeFeed(queue QueueClient, cfg ChangeFeedConfig, logger *log.Logger) *ChangeFeed {
	if queue == nil {
		panic("storage.NewChangeFeed: queue is nil")
	}
	if logger == nil {
		panic("storage.NewChangeFeed: logger is nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	f := &ChangeFeed{
		queue:   queue,
		logger:  logger,
		timeout: cfg.Timeout,
		jobs:    make(chan Change, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		f.wg.Add(1)
		go f.worker(i)
	}
	logger.Infof("change feed started, workers: %d, buffer: %d, timeout: %v", cfg.Workers, cfg.Buffer, cfg.Timeout)
	return f
}

func (f *ChangeFeed) worker(id int) {
	defer f.wg.Done()
	for ch := range f.jobs {
		if err := f.send(ch); err != nil {
			f.logger.WithError(err).WithFields(log.Fields{"kind": ch.Kind, "op": ch.Op, "worker": id}).Error("change publish failed")
		}
	}
}

func (f *ChangeFeed) send(ch Change) error {
	payload, err := sonic.Marshal(ch)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	_, err = f.queue.EnqueueMessage(ctx, string(payload), nil)
	return err
}

// Publish hands the change to a worker, or sends it inline when the buffer is
// saturated. Errors are logged, never returned.
func (f *ChangeFeed) Publish(ch Change) {
	if f == nil {
		return
	}
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if ch.Time.IsZero() {
		ch.Time = time.Now().UTC()
	}

	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		f.logger.WithField("kind", ch.Kind).Warn("change feed closed; dropping change")
		return
	}
	select {
	case f.jobs <- ch:
		f.mu.RUnlock()
		return
	default:
	}
	f.mu.RUnlock()

	f.logger.Warn("change feed buffer saturated; publishing inline")
	if err := f.send(ch); err != nil {
		f.logger.WithError(err).WithFields(log.Fields{"kind": ch.Kind, "op": ch.Op}).Error("change publish failed")
	}
}

// Close stops accepting changes and waits for queued ones to be sent.
func (f *ChangeFeed) Close() {
	if f == nil {
		return
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.jobs)
	f.mu.Unlock()
	f.wg.Wait()
}
