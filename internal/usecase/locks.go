package usecase

import "sync"

// datasetLocks - мьютекс на каждый датасет внутри процесса.
// Между процессами замену features сериализует блокировка строки в Postgres.
type datasetLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newDatasetLocks() *datasetLocks {
	return &datasetLocks{locks: make(map[int64]*sync.Mutex)}
}

func (l *datasetLocks) get(id int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// Lock ждет освобождения датасета
func (l *datasetLocks) Lock(id int64) func() {
	m := l.get(id)
	m.Lock()
	return m.Unlock
}

// TryLock не ждет: false, если датасет уже синхронизируется
func (l *datasetLocks) TryLock(id int64) (func(), bool) {
	m := l.get(id)
	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}
