package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/service"
)

// ErrQueueFull returned by Submit when the job channel is at capacity
var ErrQueueFull = errors.New("worker queue is full")

// ErrPoolStopped returned once Stop has been called
var ErrPoolStopped = errors.New("worker pool stopped")

// job sources
const (
	SourceAPI     = "api"
	SourceQueue   = "queue"
	SourceWatcher = "watcher"
)

// Job one content check scheduled on the pool
type Job struct {
	ID      string
	Name    string // report base name, defaults to ID
	Source  string
	Request *service.CheckRequest

	resultCh chan error
}

// ReportName file name (without extension) the result is stored under.
func (j *Job) ReportName() string {
	if j.Name != "" {
		return j.Name
	}
	return j.ID
}

// Handler executes one job
type Handler func(ctx context.Context, job *Job) error

// PoolObserver worker gauges and job counters
type PoolObserver interface {
	SetQueueDepth(n int)
	SetActiveWorkers(n int)
	RecordJob(source, status string, seconds float64)
}

// Pool fixed set of workers draining a bounded job channel
type Pool struct {
	workers  int
	jobChan  chan *Job
	handler  Handler
	logger   *logrus.Logger
	observer PoolObserver
	wg       sync.WaitGroup
	active   atomic.Int32

	mu       sync.RWMutex
	stopped  bool
	done     chan struct{}
	doneOnce sync.Once
}

func NewPool(workers, queueSize int, handler Handler, logger *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		workers: workers,
		jobChan: make(chan *Job, queueSize),
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// SetObserver must be called before Start.
func (p *Pool) SetObserver(o PoolObserver) {
	p.observer = o
}

// Start launches the workers; they exit when ctx is done or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	p.logger.WithField("workers", p.workers).Info("Starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.logger.WithField("worker_id", id).Debug("Worker shutting down")
			return

		case job, ok := <-p.jobChan:
			if !ok {
				p.logger.WithField("worker_id", id).Debug("Job channel closed, worker exiting")
				return
			}
			p.reportDepth()
			p.run(ctx, id, job)
		}
	}
}

func (p *Pool) run(ctx context.Context, workerID int, job *Job) {
	log := p.logger.WithFields(logrus.Fields{
		"worker_id": workerID,
		"job_id":    job.ID,
		"source":    job.Source,
	})
	log.Info("Processing job")

	if p.observer != nil {
		p.observer.SetActiveWorkers(int(p.active.Add(1)))
	}
	start := time.Now()

	err := p.safeHandle(ctx, job)

	elapsed := time.Since(start)
	if p.observer != nil {
		p.observer.SetActiveWorkers(int(p.active.Add(-1)))
		status := "success"
		if err != nil {
			status = "failed"
		}
		p.observer.RecordJob(job.Source, status, elapsed.Seconds())
	}

	if err != nil {
		log.WithError(err).Error("Job failed")
	} else {
		log.WithField("duration", elapsed.String()).Info("Job completed")
	}

	if job.resultCh != nil {
		job.resultCh <- err
		close(job.resultCh)
	}
}

// safeHandle keeps a panicking job from killing its worker.
func (p *Pool) safeHandle(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return p.handler(ctx, job)
}

// Submit enqueues job without waiting for it.
func (p *Pool) Submit(job *Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobChan <- job:
		p.reportDepth()
		p.logger.WithField("job_id", job.ID).Debug("Job submitted to pool")
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitAndWait blocks until a worker has finished job or ctx is done.
func (p *Pool) SubmitAndWait(ctx context.Context, job *Job) error {
	job.resultCh = make(chan error, 1)

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return ErrPoolStopped
	}
	select {
	case p.jobChan <- job:
		p.mu.RUnlock()
		p.reportDepth()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	case <-p.done:
		p.mu.RUnlock()
		return ErrPoolStopped
	}

	select {
	case err := <-job.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the job channel and waits for in-flight jobs.
func (p *Pool) Stop() {
	// wakes senders blocked on a full queue so the write lock can be taken
	p.doneOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobChan)
	p.mu.Unlock()

	p.logger.Info("Stopping worker pool")
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// QueueSize jobs waiting for a worker.
func (p *Pool) QueueSize() int {
	return len(p.jobChan)
}

func (p *Pool) reportDepth() {
	if p.observer != nil {
		p.observer.SetQueueDepth(len(p.jobChan))
	}
}
