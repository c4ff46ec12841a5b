package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeKV je mapa v paměti se stejným chováním jako Valkey pro MGet/Set/Del/Incr.
type fakeKV struct {
	data map[string]string
	ttls map[string]time.Duration
	err  error // vrací ho každý příkaz, pokud je nastavený

	gets, sets int
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) MGet(_ context.Context, keys ...string) *redis.SliceCmd {
	f.gets++
	if f.err != nil {
		return redis.NewSliceResult(nil, f.err)
	}
	out := make([]interface{}, len(keys))
	for i, k := range keys {
		if v, ok := f.data[k]; ok {
			out[i] = v
		}
	}
	return redis.NewSliceResult(out, nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.sets++
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case string:
		f.data[key] = v
	case []byte:
		f.data[key] = string(v)
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeKV) Incr(_ context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

type resolveResult struct {
	id  int64
	ok  bool
	err error
}

type fakeResolver struct {
	results map[string]resolveResult
	calls   int

	// during běží uprostřed čtení z DB.
	during func()
}

func (f *fakeResolver) ResolveVehicle(_ context.Context, deviceID string) (int64, bool, error) {
	f.calls++
	if f.during != nil {
		f.during()
	}
	r := f.results[deviceID]
	return r.id, r.ok, r.err
}
