package app

import "sync"

// ToastKind selects the notification style.
type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
	ToastInfo    ToastKind = "info"
)

// Toast is one transient notification.
type Toast struct {
	Kind    ToastKind
	Title   string
	Message string
}

// ToastQueue collects notifications until the next page write drains them.
type ToastQueue struct {
	mu     sync.Mutex
	toasts []Toast
}

func (q *ToastQueue) Push(t Toast) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.toasts = append(q.toasts, t)
}

func (q *ToastQueue) Success(title, message string) {
	q.Push(Toast{Kind: ToastSuccess, Title: title, Message: message})
}

func (q *ToastQueue) Error(title, message string) {
	q.Push(Toast{Kind: ToastError, Title: title, Message: message})
}

func (q *ToastQueue) Info(title, message string) {
	q.Push(Toast{Kind: ToastInfo, Title: title, Message: message})
}

// Drain returns pending toasts and empties the queue.
func (q *ToastQueue) Drain() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.toasts
	q.toasts = nil
	return out
}

// Pending returns a copy without draining.
func (q *ToastQueue) Pending() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Toast(nil), q.toasts...)
}
