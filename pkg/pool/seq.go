package pool

import (
	"container/list"
	"sync"
)

// SeqClass serializes related jobs: at most one job of the class is
// in-flight in the pool at any time; the rest wait in the class queue.
type SeqClass struct {
	mu        sync.Mutex
	jobs      list.List // of *Job
	free      bool
	accepting bool
}

// CreateSeq creates a new job sequence class. ReleaseSeq should be
// called once it is no longer needed.
func (p *Pool) CreateSeq() *SeqClass {
	return &SeqClass{free: true, accepting: true}
}

// ReleaseSeq disables the class and drains its queue through fin.
func (p *Pool) ReleaseSeq(seq *SeqClass, fin func(ctx any)) {
	p.DisableSeq(seq, fin)
}

// DisableSeq stops all queued jobs of the class and rejects future
// submissions. Each unstarted job's context is passed to fin so the
// caller can free associated resources.
func (p *Pool) DisableSeq(seq *SeqClass, fin func(ctx any)) {
	seq.mu.Lock()
	defer seq.mu.Unlock()

	seq.accepting = false
	seq.free = true
	for seq.jobs.Len() > 0 {
		j := seq.jobs.Remove(seq.jobs.Front()).(*Job)
		if fin != nil {
			fin(j.ctx)
		}
		if j.rc != nil {
			j.rc.Decrement()
		}
	}
}

// StopJobs removes every queued job of the class for which pred returns
// true, using pred as the finalizer for the removed jobs.
func (p *Pool) StopJobs(seq *SeqClass, pred func(ctx any) bool) {
	seq.mu.Lock()
	defer seq.mu.Unlock()

	for e := seq.jobs.Front(); e != nil; {
		next := e.Next()
		j := e.Value.(*Job)
		if pred(j.ctx) {
			seq.jobs.Remove(e)
			if j.rc != nil {
				j.rc.Decrement()
			}
		}
		e = next
	}
}

// seqRun executes one job of a class and then, under the class lock,
// either submits the next queued job to the pool or marks the class
// free again.
func (p *Pool) seqRun(seq *SeqClass, j *Job) {
	j.fn(j.ctx)
	if j.rc != nil {
		j.rc.Decrement()
	}

	seq.mu.Lock()
	defer seq.mu.Unlock()
	if seq.jobs.Len() == 0 {
		seq.free = true
		return
	}
	next := seq.jobs.Remove(seq.jobs.Front()).(*Job)
	p.enqueue(&Job{
		fn:  func(any) { p.seqRun(seq, next) },
		ctx: next.ctx,
	})
}

// EnqueueSeq queues a job in the given sequence class. Returns false if
// the class or the pool no longer accepts work.
func (p *Pool) EnqueueSeq(seq *SeqClass, fn func(ctx any), ctx any) bool {
	return p.enqueueSeq(seq, &Job{fn: fn, ctx: ctx})
}

// EnqueueSeqRef is EnqueueSeq tied to a reference counter, incremented
// now and decremented once the job completes or is finalized.
func (p *Pool) EnqueueSeqRef(seq *SeqClass, fn func(ctx any), ctx any, rc *RefCounter) bool {
	rc.Increment()
	if !p.enqueueSeq(seq, &Job{fn: fn, ctx: ctx, rc: rc}) {
		rc.Decrement()
		return false
	}
	return true
}

func (p *Pool) enqueueSeq(seq *SeqClass, j *Job) bool {
	seq.mu.Lock()
	defer seq.mu.Unlock()
	if !seq.accepting {
		return false
	}

	if seq.free {
		seq.free = false
		if !p.enqueue(&Job{
			fn:  func(any) { p.seqRun(seq, j) },
			ctx: j.ctx,
		}) {
			seq.free = true
			return false
		}
		return true
	}

	seq.jobs.PushBack(j)
	return true
}
