// Package autosave coalesces document edits into delayed, single-writer flushes.
//
// Each document has at most one pending timer. Edits arriving while a timer is
// pending only replace the content it will write. When the timer fires, the
// latest content is written if it differs from what was last stored.
package autosave

import (
	"context"
	"sync"
	"time"

	"codocs/pkg/logger"

	"go.uber.org/zap"
)

const DefaultDelay = 5 * time.Second

// Saver persists the full content of a document.
type Saver interface {
	UpdateContent(ctx context.Context, docID, content string) error
}

type entry struct {
	latest    string
	written   string
	hasWrite  bool
	timer     *time.Timer
	flushing  bool
	scheduled bool
}

type Persister struct {
	saver        Saver
	delay        time.Duration
	writeTimeout time.Duration

	mu     sync.Mutex
	docs   map[string]*entry
	closed bool
	wg     sync.WaitGroup
}

func New(saver Saver, delay time.Duration) *Persister {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Persister{
		saver:        saver,
		delay:        delay,
		writeTimeout: 10 * time.Second,
		docs:         make(map[string]*entry),
	}
}

// Touch records content as the latest state of docID and makes sure a flush is
// pending. It never blocks on storage.
func (p *Persister) Touch(docID, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	e, ok := p.docs[docID]
	if !ok {
		e = &entry{}
		p.docs[docID] = e
	}
	e.latest = content
	if !e.scheduled {
		p.schedule(docID, e)
	}
}

// schedule arms the single timer for docID. p.mu must be held.
func (p *Persister) schedule(docID string, e *entry) {
	e.scheduled = true
	p.wg.Add(1)
	e.timer = time.AfterFunc(p.delay, func() {
		defer p.wg.Done()
		p.flush(docID)
	})
}

func (p *Persister) flush(docID string) {
	p.mu.Lock()
	e, ok := p.docs[docID]
	if !ok || e.flushing {
		p.mu.Unlock()
		return
	}
	if e.hasWrite && e.written == e.latest {
		e.scheduled = false
		e.timer = nil
		p.mu.Unlock()
		return
	}
	content := e.latest
	e.flushing = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	err := p.saver.UpdateContent(ctx, docID, content)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	e.flushing = false
	e.scheduled = false
	e.timer = nil

	if err != nil {
		// No immediate retry: the next edit schedules the next attempt.
		logger.Log.Error("Autosave failed", zap.String("doc_id", docID), zap.Error(err))
		return
	}
	logger.Log.Debug("Autosaved document", zap.String("doc_id", docID), zap.Int("bytes", len(content)))

	e.written = content
	e.hasWrite = true
	if e.latest == content {
		return
	}
	// Edits landed during the write.
	if p.closed {
		// Close is waiting on p.wg, so write them now instead of after a delay.
		e.scheduled = true
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.flush(docID)
		}()
		return
	}
	p.schedule(docID, e)
}

// Forget drops the bookkeeping for an idle document. A document with a flush
// pending or in flight is left alone.
func (p *Persister) Forget(docID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.docs[docID]; ok && !e.scheduled && !e.flushing {
		delete(p.docs, docID)
	}
}

// Pending reports whether docID has a flush scheduled or in flight.
func (p *Persister) Pending(docID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.docs[docID]
	return ok && (e.scheduled || e.flushing)
}

// Close stops accepting edits and flushes every pending document immediately.
// It waits for in-flight writes or until ctx is done.
func (p *Persister) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	var due []string
	for docID, e := range p.docs {
		if e.timer != nil && e.timer.Stop() {
			// The stopped callback will never run Done.
			p.wg.Done()
			e.timer = nil
			e.scheduled = false
			due = append(due, docID)
		}
	}
	p.mu.Unlock()

	for _, docID := range due {
		p.wg.Add(1)
		go func(docID string) {
			defer p.wg.Done()
			p.flush(docID)
		}(docID)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
