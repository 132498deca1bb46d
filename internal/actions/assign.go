package actions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/routing"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/utils"
)

// Assigner handles assign_to_user. With a user_ids list it keeps the two users
// it has assigned least so far and picks the lesser loaded one, using the
// message id only to break a tie.
type Assigner struct {
	mu   sync.Mutex
	load map[int64]int
}

func NewAssigner() *Assigner {
	return &Assigner{load: map[int64]int{}}
}

func (a *Assigner) Handle(ctx context.Context, act routing.Action) (map[string]any, error) {
	if id, ok := toInt64(act.Params["user_id"]); ok {
		a.mu.Lock()
		a.load[id]++
		a.mu.Unlock()
		return map[string]any{"assigned_user_id": id, "method": "fixed"}, nil
	}

	candidates, err := userIDs(act.Params["user_ids"])
	if err != nil {
		return nil, Permanent(err)
	}

	a.mu.Lock()
	picked, top2 := PickAssignee(act.Email.MessageID, candidates, a.load)
	a.load[picked]++
	a.mu.Unlock()

	return map[string]any{
		"assigned_user_id": picked,
		"candidates":       top2,
		"method":           "least_loaded_hash",
	}, nil
}

// PickAssignee orders candidates by load then id and keeps the first two.
// The least loaded of those wins; when both carry the same load, key picks
// between them. The returned slice is the kept pair.
func PickAssignee(key string, candidates []int64, load map[int64]int) (int64, []int64) {
	pool := append([]int64(nil), candidates...)
	sort.Slice(pool, func(i, j int) bool {
		if load[pool[i]] == load[pool[j]] {
			return pool[i] < pool[j]
		}
		return load[pool[i]] < load[pool[j]]
	})
	if len(pool) > 2 {
		pool = pool[:2]
	}
	tied := 1
	for tied < len(pool) && load[pool[tied]] == load[pool[0]] {
		tied++
	}
	idx := int(mix64(utils.HashStringToUint64(key)) % uint64(tied))
	return pool[idx], pool
}

// mix64 is the splitmix64 finalizer. FNV's low bits follow the parity of the
// input bytes, so they are folded with the high bits before taking a modulus.
func mix64(h uint64) uint64 {
	h ^= h >> 30
	h *= 0xbf58476d1ce4e5b9
	h ^= h >> 27
	h *= 0x94d049bb133111eb
	h ^= h >> 31
	return h
}

func userIDs(v any) ([]int64, error) {
	var raw []any
	switch list := v.(type) {
	case []any:
		raw = list
	case []int64:
		return list, nil
	case nil:
		return nil, errors.New("assign_to_user: user_id or user_ids param is required")
	default:
		return nil, fmt.Errorf("assign_to_user: user_ids must be a list, got %T", v)
	}

	out := make([]int64, 0, len(raw))
	seen := map[int64]bool{}
	for _, item := range raw {
		id, ok := toInt64(item)
		if !ok {
			return nil, fmt.Errorf("assign_to_user: %v is not a user id", item)
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("assign_to_user: user_ids is empty")
	}
	return out, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), n > 0
	case int64:
		return n, n > 0
	case float64:
		return int64(n), n > 0 && n == float64(int64(n))
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		return id, err == nil && id > 0
	}
	return 0, false
}
