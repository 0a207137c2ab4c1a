package encryption

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"cipherlink-backend/pkg/constants"
	"cipherlink-backend/pkg/cryptobox"
	"cipherlink-backend/pkg/env"
	"cipherlink-backend/pkg/metrics"
)

// ErrPoolClosed is returned for tasks submitted after Shutdown
var ErrPoolClosed = errors.New("seal pool is closed")

// SealTask is one session-key sealing request: seal SessionKey under the
// recipient's public key with the sender's key pair as sealer identity.
type SealTask struct {
	SessionKey         []byte
	RecipientPublicKey string
	SenderPrivateKey   string
}

// SealResult delivers the sealed key or the error that failed the task
type SealResult struct {
	SealedKey string
	Err       error
}

type poolTask struct {
	task   SealTask
	result chan SealResult
}

// SealPool is a fixed-size pool of seal workers. Tasks queue FIFO in a
// bounded channel; each worker runs one task at a time. A worker that fails
// a task is terminated and not reused - it hands its slot to a replacement
// before exiting, so one crash fails one task and queued tasks keep draining.
type SealPool struct {
	size  int
	tasks chan *poolTask

	mu     sync.Mutex
	alive  int
	closed bool

	// pending tracks Submits past the closed check but not yet enqueued, so
	// Shutdown never closes the queue under an in-flight send
	pending sync.WaitGroup

	metrics *metrics.Metrics
}

// NewSealPool creates a pool with n workers. n < 1 falls back to the
// available parallelism. Workers are not started until first use.
func NewSealPool(n int, m *metrics.Metrics) *SealPool {
	if n < 1 {
		n = runtime.NumCPU()
	}
	return &SealPool{
		size:    n,
		tasks:   make(chan *poolTask, constants.SealQueueCapacity),
		metrics: m,
	}
}

var (
	defaultPool     *SealPool
	defaultPoolOnce sync.Once
)

// Default returns the process-wide pool, lazily constructed on first use and
// shared by all concurrent encryption calls for the lifetime of the process.
func Default() *SealPool {
	defaultPoolOnce.Do(func() {
		defaultPool = NewSealPool(env.GetInt("SEAL_POOL_SIZE", runtime.NumCPU()), nil)
	})
	return defaultPool
}

// Submit enqueues a sealing task and returns a channel that will deliver
// exactly one result. Dispatch is immediate when an idle worker exists,
// FIFO-queued otherwise.
func (p *SealPool) Submit(task SealTask) <-chan SealResult {
	pt := &poolTask{
		task:   task,
		result: make(chan SealResult, 1),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		pt.result <- SealResult{Err: ErrPoolClosed}
		return pt.result
	}
	p.pending.Add(1)
	// Start workers lazily, up to the configured size
	if p.alive < p.size {
		p.alive++
		go p.worker()
	}
	p.mu.Unlock()

	p.tasks <- pt
	p.pending.Done()
	if p.metrics != nil {
		p.metrics.SetSealQueueDepth(len(p.tasks))
	}

	return pt.result
}

// Shutdown stops accepting tasks and lets running workers drain the queue.
// Queued tasks still complete; later Submits fail with ErrPoolClosed.
func (p *SealPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	// Every Submit that saw the pool open has enqueued before the close
	p.pending.Wait()
	close(p.tasks)
}

// worker executes tasks one at a time. On a failed or panicking task the
// worker reports the error to that task's result channel, spawns its own
// replacement and exits. The hand-off keeps the worker count constant, so
// tasks queued behind the failure are served without waiting for a Submit.
func (p *SealPool) worker() {
	for pt := range p.tasks {
		result := runSeal(pt.task)
		pt.result <- result

		if result.Err != nil {
			if p.metrics != nil {
				p.metrics.RecordWorkerRespawn()
			}
			go p.worker()
			return
		}
	}

	// Pool shut down; this worker is done
	p.mu.Lock()
	p.alive--
	p.mu.Unlock()
}

// runSeal performs the seal, converting a panic into a task error so a
// poisoned task can never take down more than its own worker.
func runSeal(task SealTask) (result SealResult) {
	defer func() {
		if r := recover(); r != nil {
			result = SealResult{Err: fmt.Errorf("seal worker panic: %v", r)}
		}
	}()

	sealed, err := cryptobox.Seal(task.SessionKey, task.RecipientPublicKey, task.SenderPrivateKey)
	if err != nil {
		return SealResult{Err: err}
	}
	return SealResult{SealedKey: sealed}
}
