// Package dispatcher implements the Scheduler/Dispatcher: it accepts
// inbound lifecycle events, preserves per-student submission order via a
// per-student FIFO queue, and bounds cross-student parallelism with an
// errgroup-style worker limit. Each dispatched job runs under a deadline
// whose cancellation propagates to in-flight generator calls.
package dispatcher

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"noble-language-orchestrator/internal/apperrors"
)

// Job is a unit of work submitted for a given student. Run receives a
// context that is cancelled once jobTimeout elapses; it must propagate that
// context to every generator/store call it makes.
type Job struct {
	StudentID uuid.UUID
	Name      string
	Run       func(ctx context.Context) error
}

// Dispatcher fans events out to per-student queues, each drained by its own
// goroutine, while a shared errgroup caps how many queues run concurrently.
type Dispatcher struct {
	jobTimeout time.Duration
	maxRetries int
	retryBase  time.Duration
	retryMax   time.Duration

	mu     sync.Mutex
	queues map[uuid.UUID]chan Job
	group  *errgroup.Group
	limit  int
}

// New builds a Dispatcher. maxParallel bounds how many student queues may be
// actively draining at once; jobTimeout is the per-job deadline (§4.2's
// per-pipeline bound); retries/retryBase/retryMax parameterize the backoff
// applied when a job's Run returns a retriable error.
func New(maxParallel int, jobTimeout time.Duration, maxRetries int, retryBase, retryMax time.Duration) *Dispatcher {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	g := &errgroup.Group{}
	g.SetLimit(maxParallel)
	return &Dispatcher{
		jobTimeout: jobTimeout,
		maxRetries: maxRetries,
		retryBase:  retryBase,
		retryMax:   retryMax,
		queues:     make(map[uuid.UUID]chan Job),
		group:      g,
		limit:      maxParallel,
	}
}

// Submit enqueues job for its student, starting that student's drain
// goroutine on first use. Jobs for the same student always run in the order
// they were submitted; jobs for different students may run concurrently up
// to the configured limit.
func (d *Dispatcher) Submit(job Job) {
	d.mu.Lock()
	queue, ok := d.queues[job.StudentID]
	spawn := false
	if !ok {
		queue = make(chan Job, 64)
		d.queues[job.StudentID] = queue
		spawn = true
	}
	// Sending while still holding the lock serializes against drain's
	// lock-guarded idle cleanup, so a job can never be queued onto a
	// channel whose drain goroutine has already decided to exit.
	queue <- job
	d.mu.Unlock()

	if spawn {
		// group.Go blocks its caller until a slot under the configured
		// limit frees up. Calling it after releasing the lock keeps a
		// dispatcher at capacity from stalling every other student's
		// Submit call while this one waits for room.
		d.group.Go(func() error {
			d.drain(job.StudentID, queue)
			return nil
		})
	}
}

// drainIdleTimeout is how long drain waits for a new job before giving up
// its errgroup slot, letting Submit spin up a fresh goroutine later.
const drainIdleTimeout = 2 * time.Second

// drain processes one student's queue in submission order. Because the
// errgroup caps total concurrently-running goroutines, a student whose
// queue sits empty past drainIdleTimeout releases its slot by returning;
// Submit starts a fresh drain goroutine the next time that student has work.
func (d *Dispatcher) drain(studentID uuid.UUID, queue chan Job) {
	timer := time.NewTimer(drainIdleTimeout)
	defer timer.Stop()
	for {
		select {
		case job := <-queue:
			if !timer.Stop() {
				<-timer.C
			}
			d.runWithRetry(job)
			timer.Reset(drainIdleTimeout)
		case <-timer.C:
			d.mu.Lock()
			select {
			case job := <-queue:
				// A job slipped in between the timeout firing and the lock;
				// keep draining instead of dropping it.
				d.mu.Unlock()
				d.runWithRetry(job)
				timer.Reset(drainIdleTimeout)
			default:
				delete(d.queues, studentID)
				d.mu.Unlock()
				return
			}
		}
	}
}

// runWithRetry runs job under its deadline, retrying retriable failures with
// jittered exponential backoff (the same base*2^(retries-1), capped,
// up-to-10%-jitter shape used across the pack's dispatch tooling).
func (d *Dispatcher) runWithRetry(job Job) {
	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoffDelay(attempt, d.retryBase, d.retryMax))
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.jobTimeout)
		err := job.Run(ctx)
		cancel()
		if err == nil {
			return
		}
		lastErr = err
		if !apperrors.Retriable(err) {
			log.Printf("dispatcher: job %q for student %s failed (non-retriable): %v", job.Name, job.StudentID, err)
			return
		}
	}
	log.Printf("dispatcher: job %q for student %s exhausted %d retries, last error: %v", job.Name, job.StudentID, d.maxRetries, lastErr)
}

// Wait blocks until every student queue currently being drained finishes.
// It does not prevent new Submit calls from starting fresh drains; callers
// shutting down should stop submitting before calling Wait.
func (d *Dispatcher) Wait() error {
	return d.group.Wait()
}

// backoffDelay computes an exponential backoff with up to 10% jitter,
// capped at maxDelay. retries <= 0 yields no delay.
func backoffDelay(retries int, base, maxDelay time.Duration) time.Duration {
	if retries <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < retries; i++ {
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
			break
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
	return delay + jitter
}
