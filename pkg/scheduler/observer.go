package scheduler

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/harun/dispatch/pkg/toolcall"
)

// StateChange describes one lifecycle transition of a call record.
type StateChange struct {
	BatchID string         `json:"batch_id"`
	CallID  string         `json:"call_id"`
	Tool    string         `json:"tool"`
	From    toolcall.State `json:"from"`
	To      toolcall.State `json:"to"`
}

// OutputChunk carries one live output fragment from an executing call.
type OutputChunk struct {
	BatchID string `json:"batch_id"`
	CallID  string `json:"call_id"`
	Tool    string `json:"tool"`
	Chunk   string `json:"chunk"`
}

// Observer receives scheduler notifications. State changes and output chunks
// arrive on a single dispatch goroutine in emission order; a slow observer
// delays other observers but never an executing call. OnBatchComplete runs
// on the batch goroutine after every queued event has been delivered.
type Observer interface {
	OnStateChange(change StateChange)
	OnOutput(chunk OutputChunk)
	OnBatchComplete(result BatchResult)
}

// notifier fans events out to subscribed observers. Publishing never blocks:
// events land in a FIFO queue drained by one worker goroutine, so per-record
// ordering survives end to end.
type notifier struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []interface{}
	observers map[int]Observer
	order     []int
	nextID    int
	idle      bool
	closed    bool
}

func newNotifier() *notifier {
	n := &notifier{observers: make(map[int]Observer)}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

// subscribe registers an observer and returns a function that removes it.
func (n *notifier) subscribe(o Observer) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.observers[id] = o
	n.order = append(n.order, id)
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.observers, id)
		for i, oid := range n.order {
			if oid == id {
				n.order = append(n.order[:i], n.order[i+1:]...)
				break
			}
		}
	}
}

func (n *notifier) publishStateChange(change StateChange) {
	n.publish(change)
}

func (n *notifier) publishOutput(chunk OutputChunk) {
	n.publish(chunk)
}

func (n *notifier) publish(event interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.queue = append(n.queue, event)
	n.cond.Broadcast()
}

// drain blocks until the queue is empty and the worker is between events.
func (n *notifier) drain() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for len(n.queue) > 0 || !n.idle {
		n.cond.Wait()
	}
}

// complete invokes OnBatchComplete on every current subscriber, on the
// caller's goroutine. Call drain first so queued events precede completion.
func (n *notifier) complete(result BatchResult) {
	n.mu.Lock()
	observers := n.snapshotLocked()
	n.mu.Unlock()
	for _, o := range observers {
		o.OnBatchComplete(result)
	}
}

// close stops the worker after the queue empties. Further publishes are
// dropped.
func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.cond.Broadcast()
}

func (n *notifier) snapshotLocked() []Observer {
	observers := make([]Observer, 0, len(n.order))
	for _, id := range n.order {
		if o, ok := n.observers[id]; ok {
			observers = append(observers, o)
		}
	}
	return observers
}

func (n *notifier) run() {
	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.idle = true
			n.cond.Broadcast()
			n.cond.Wait()
		}
		if len(n.queue) == 0 && n.closed {
			n.idle = true
			n.cond.Broadcast()
			n.mu.Unlock()
			return
		}
		n.idle = false
		event := n.queue[0]
		n.queue = n.queue[1:]
		observers := n.snapshotLocked()
		n.mu.Unlock()

		for _, o := range observers {
			dispatch(o, event)
		}
	}
}

func dispatch(o Observer, event interface{}) {
	switch e := event.(type) {
	case StateChange:
		o.OnStateChange(e)
	case OutputChunk:
		o.OnOutput(e)
	default:
		log.Warn().Msgf("scheduler: dropping event of unexpected type %T", event)
	}
}
