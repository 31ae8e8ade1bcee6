package state

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Redis backs the shared store with a redis server. The flat dotted
// keyspace and counter-on-a-channel publish scheme map directly onto redis
// strings, MULTI/EXEC and pub/sub.
type Redis struct {
	rdb *redis.Client
	mu  sync.Mutex
}

// NewRedis connects and pings the backend. An unreachable server is an
// initialization failure.
func NewRedis(addr string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, addr, err)
	}

	return &Redis{rdb: rdb}, nil
}

func (s *Redis) Close() error {
	return s.rdb.Close()
}

func (s *Redis) Setup(ctx context.Context, r Marshaler) error {
	name := r.RecordName()
	pipe := s.rdb.Pipeline()
	for field, value := range r.MarshalFields() {
		pipe.SetNX(ctx, fieldKey(name, field), value, 0)
	}
	pipe.SetNX(ctx, counterKey(name), 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: setup %s: %v", ErrUnreachable, name, err)
	}
	return nil
}

func (s *Redis) Save(ctx context.Context, r Marshaler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := r.RecordName()
	pipe := s.rdb.TxPipeline()
	for field, value := range r.MarshalFields() {
		pipe.Set(ctx, fieldKey(name, field), value, 0)
	}
	pipe.Incr(ctx, counterKey(name))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: save %s: %v", ErrUnreachable, name, err)
	}
	return nil
}

func (s *Redis) Load(ctx context.Context, r Record) error {
	name := r.RecordName()
	schema := r.MarshalFields()

	keys := make([]string, 0, len(schema))
	fields := make([]string, 0, len(schema))
	for field := range schema {
		fields = append(fields, field)
		keys = append(keys, fieldKey(name, field))
	}

	// counter-consistent snapshot: re-read until the counter is stable
	for attempt := 0; ; attempt++ {
		before, err := s.counter(ctx, name)
		if err != nil {
			return err
		}
		values, err := s.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("%w: load %s: %v", ErrUnreachable, name, err)
		}
		after, err := s.counter(ctx, name)
		if err != nil {
			return err
		}
		if before != after {
			if attempt > 10 {
				return fmt.Errorf("load %s: snapshot would not settle", name)
			}
			continue
		}

		f := Fields{}
		for i, v := range values {
			if sv, ok := v.(string); ok {
				f[fields[i]] = sv
			}
		}
		return r.UnmarshalFields(f)
	}
}

func (s *Redis) Publish(ctx context.Context, name string) error {
	count, err := s.counter(ctx, name)
	if err != nil {
		return err
	}
	if err := s.rdb.Publish(ctx, name, count).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrUnreachable, name, err)
	}
	return nil
}

func (s *Redis) Subscribe(ctx context.Context, name string) (<-chan int64, error) {
	pubsub := s.rdb.Subscribe(ctx, name)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %v", ErrUnreachable, name, err)
	}

	out := make(chan int64, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()
		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				count, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					log.WithError(err).Warnf("Bad counter on channel '%s'", name)
					continue
				}
				select {
				case out <- count:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Redis) counter(ctx context.Context, name string) (int64, error) {
	v, err := s.rdb.Get(ctx, counterKey(name)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: counter %s: %v", ErrUnreachable, name, err)
	}
	count, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s: %v", name, err)
	}
	return count, nil
}
