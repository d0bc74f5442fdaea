package orchestrator

// workQueue — очередь ID шагов на выполнение.
//
// Элементы извлекаются с головы, новые ветки добавляются только в хвост.
// Очередь помнит, какие ID ещё ожидают выполнения.
type workQueue struct {
	items   []string
	head    int
	pending map[string]int
}

func newWorkQueue(ids []string) *workQueue {
	q := &workQueue{pending: make(map[string]int, len(ids))}
	for _, id := range ids {
		q.Push(id)
	}
	return q
}

// Push добавляет ID в хвост.
func (q *workQueue) Push(id string) {
	q.items = append(q.items, id)
	q.pending[id]++
}

// Pop извлекает ID с головы.
func (q *workQueue) Pop() (string, bool) {
	if q.head >= len(q.items) {
		return "", false
	}
	id := q.items[q.head]
	q.head++
	if q.pending[id]--; q.pending[id] <= 0 {
		delete(q.pending, id)
	}
	return id, true
}

// Len возвращает число ожидающих элементов.
func (q *workQueue) Len() int {
	return len(q.items) - q.head
}

// Pending сообщает, ожидает ли ID выполнения.
func (q *workQueue) Pending(id string) bool {
	return q.pending[id] > 0
}

// Remaining возвращает ожидающие ID по порядку.
func (q *workQueue) Remaining() []string {
	return append([]string(nil), q.items[q.head:]...)
}
