package crawler

import "sync"

type frontierItem struct {
	url   string
	depth int
}

// frontier is the FIFO queue plus visited set of one traversal. Fetch
// goroutines push discovered links concurrently while the coordinator pops,
// so every operation takes the mutex. A URL is marked visited when it is
// popped, which makes check-and-mark atomic.
type frontier struct {
	mu       sync.Mutex
	queue    []frontierItem
	head     int
	visited  map[string]struct{}
	maxQueue int
}

func newFrontier(maxQueue int) *frontier {
	return &frontier{
		visited:  make(map[string]struct{}),
		maxQueue: maxQueue,
	}
}

// push enqueues url unless it was already visited or the queue is full.
func (f *frontier) push(url string, depth int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue)-f.head >= f.maxQueue {
		return false
	}
	if _, seen := f.visited[url]; seen {
		return false
	}
	f.queue = append(f.queue, frontierItem{url: url, depth: depth})
	return true
}

// pop dequeues the next unvisited item and marks it visited. Already visited
// entries (queued twice before either was popped) are skipped.
func (f *frontier) pop() (frontierItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.head < len(f.queue) {
		item := f.queue[f.head]
		f.queue[f.head] = frontierItem{}
		f.head++
		f.compact()
		if _, seen := f.visited[item.url]; seen {
			continue
		}
		f.visited[item.url] = struct{}{}
		return item, true
	}
	return frontierItem{}, false
}

func (f *frontier) compact() {
	if f.head == len(f.queue) {
		f.queue = f.queue[:0]
		f.head = 0
		return
	}
	if f.head > 1024 && f.head*2 > len(f.queue) {
		n := copy(f.queue, f.queue[f.head:])
		f.queue = f.queue[:n]
		f.head = 0
	}
}
