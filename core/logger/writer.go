package logger

import (
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// asyncWriter fans log lines out to its sinks from a single goroutine so that
// handlers never block on slow outputs unless the queue is full.
type asyncWriter struct {
	queue chan []byte
	flush chan chan error
	done  chan struct{}
	once  sync.Once
	sinks []io.Writer

	mu  sync.Mutex
	err error
}

func newAsyncWriter(writers []io.Writer, queueSize int) *asyncWriter {
	if queueSize <= 0 {
		queueSize = 256
	}
	sinks := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, w)
		}
	}
	aw := &asyncWriter{
		queue: make(chan []byte, queueSize),
		flush: make(chan chan error),
		done:  make(chan struct{}),
		sinks: sinks,
	}
	go aw.loop()
	return aw
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				return
			}
			w.writeAll(line)
		case ack := <-w.flush:
			// drain what was queued before the flush request
			for n := len(w.queue); n > 0; n-- {
				line, ok := <-w.queue
				if !ok {
					break
				}
				w.writeAll(line)
			}
			ack <- w.firstErr()
		}
	}
}

// Write copies p and queues it. It blocks only while the queue is full.
func (w *asyncWriter) Write(p []byte) (err error) {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	defer func() {
		// send on the closed queue after Close
		if recover() != nil {
			err = errWriterClosed
		}
	}()
	w.queue <- append([]byte(nil), p...)
	return nil
}

// Flush returns once every line queued before the call reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flush <- ack:
		return <-ack
	case <-w.done:
		return w.firstErr()
	}
}

// Close drains the queue and reports the first write error.
func (w *asyncWriter) Close() error {
	w.once.Do(func() { close(w.queue) })
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) writeAll(p []byte) {
	for _, sink := range w.sinks {
		if _, err := sink.Write(p); err != nil {
			w.setErr(err)
		}
	}
}

func (w *asyncWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *asyncWriter) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
