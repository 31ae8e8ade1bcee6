package state

import (
	"context"
	"sync"
)

// Memory is an in-process Store with the same atomicity and pub/sub
// contract as the redis backend. It backs tests and single-process runs.
type Memory struct {
	mu       sync.RWMutex
	values   map[string]string
	counters map[string]int64
	subs     map[string][]chan int64
}

func NewMemory() *Memory {
	return &Memory{
		values:   map[string]string{},
		counters: map[string]int64{},
		subs:     map[string][]chan int64{},
	}
}

func (s *Memory) Setup(ctx context.Context, r Marshaler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := r.RecordName()
	for field, value := range r.MarshalFields() {
		k := fieldKey(name, field)
		if _, ok := s.values[k]; !ok {
			s.values[k] = value
		}
	}
	return nil
}

func (s *Memory) Save(ctx context.Context, r Marshaler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := r.RecordName()
	for field, value := range r.MarshalFields() {
		s.values[fieldKey(name, field)] = value
	}
	s.counters[name]++
	return nil
}

func (s *Memory) Load(ctx context.Context, r Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := r.RecordName()
	f := Fields{}
	for field := range r.MarshalFields() {
		if v, ok := s.values[fieldKey(name, field)]; ok {
			f[field] = v
		}
	}
	return r.UnmarshalFields(f)
}

func (s *Memory) Publish(ctx context.Context, name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.counters[name]
	for _, ch := range s.subs[name] {
		select {
		case ch <- count:
		default:
			// a subscriber that cannot keep up misses a counter, it will
			// catch up on the next publish
		}
	}
	return nil
}

func (s *Memory) Subscribe(ctx context.Context, name string) (<-chan int64, error) {
	ch := make(chan int64, 16)

	s.mu.Lock()
	s.subs[name] = append(s.subs[name], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		subs := s.subs[name]
		for i, c := range subs {
			if c == ch {
				s.subs[name] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Counter exposes the save counter of a record type, for tests.
func (s *Memory) Counter(name string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[name]
}
