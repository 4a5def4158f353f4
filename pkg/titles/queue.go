package titles

import (
	"sync"

	"github.com/quorumlabs/council/pkg/models"
)

// jobQueue is the title service's priority queue: two classes, immediate
// ahead of background, guarded by a mutex + condition variable. Jobs are
// idempotent per conversation — a second enqueue for a conversation that is
// already queued or generating is a no-op. Immediate jobs preempt the queue
// head but never an in-progress job.
type jobQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	immediate  []*models.TitleJob
	background []*models.TitleJob

	// active tracks conversations with a job queued or generating, for the
	// idempotence guarantee.
	active map[string]struct{}

	closed bool
}

func newJobQueue() *jobQueue {
	q := &jobQueue{active: make(map[string]struct{})}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// enqueue adds a job unless one is already queued or generating for the
// same conversation. Returns whether the job was accepted.
func (q *jobQueue) enqueue(job *models.TitleJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, dup := q.active[job.ConversationID]; dup {
		return false
	}

	job.Status = models.TitleStatusQueued
	q.active[job.ConversationID] = struct{}{}
	if job.Priority == models.PriorityImmediate {
		q.immediate = append(q.immediate, job)
	} else {
		q.background = append(q.background, job)
	}
	q.cond.Signal()
	return true
}

// pop blocks until a job is available or the queue is closed. Immediate
// jobs drain first.
func (q *jobQueue) pop() (*models.TitleJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.immediate) == 0 && len(q.background) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}

	var job *models.TitleJob
	if len(q.immediate) > 0 {
		job = q.immediate[0]
		q.immediate = q.immediate[1:]
	} else {
		job = q.background[0]
		q.background = q.background[1:]
	}
	job.Status = models.TitleStatusGenerating
	return job, true
}

// finish releases a conversation's idempotence slot once its job reaches a
// terminal status.
func (q *jobQueue) finish(conversationID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, conversationID)
}

// close wakes all waiters; pop returns false afterwards.
func (q *jobQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
