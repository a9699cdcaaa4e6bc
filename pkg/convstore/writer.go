// Package convstore is the conversation half of the persistence layer:
// Conversation, ConversationMessage, and WatchRule repositories over the
// shared pgx pool.
//
// Message writes are serialized through a single background goroutine
// draining a channel of closures. This keeps ConversationMessage.Timestamp
// non-decreasing within a conversation without a database-level advisory
// lock.
package convstore

import "context"

// writeJob is one unit of serialized work submitted to the writer
// goroutine; it returns its result on resultCh.
type writeJob struct {
	ctx      context.Context
	fn       func(ctx context.Context) error
	resultCh chan error
}

// writer owns the single goroutine through which every ConversationStore
// message write (AppendMessage, UpdateMessage) passes, in submission order.
type writer struct {
	jobs chan writeJob
	done chan struct{}
}

func newWriter() *writer {
	w := &writer{
		jobs: make(chan writeJob, 256),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) run() {
	for job := range w.jobs {
		job.resultCh <- job.fn(job.ctx)
	}
	close(w.done)
}

// submit runs fn on the writer goroutine and blocks until it completes,
// preserving ordering relative to every other submit call.
func (w *writer) submit(ctx context.Context, fn func(ctx context.Context) error) error {
	resultCh := make(chan error, 1)
	w.jobs <- writeJob{ctx: ctx, fn: fn, resultCh: resultCh}
	return <-resultCh
}

// close stops accepting new writes and waits for the goroutine to drain.
func (w *writer) close() {
	close(w.jobs)
	<-w.done
}
