package registry

import "github.com/modlink/registry-engine/internal/address"

// Policy decides which actors may feed observations and overwrite the
// aggregate counters. Entity authority is enforced separately.
type Policy interface {
	CanObserve(actor address.Key) bool
	CanReconcile(actor address.Key) bool
}

// AllowList is a Policy backed by static lists. An empty list admits every actor.
type AllowList struct {
	Observers   []address.Key
	Reconcilers []address.Key
}

func (a AllowList) CanObserve(actor address.Key) bool   { return admits(a.Observers, actor) }
func (a AllowList) CanReconcile(actor address.Key) bool { return admits(a.Reconcilers, actor) }

func admits(list []address.Key, actor address.Key) bool {
	if len(list) == 0 {
		return !actor.IsZero()
	}
	for _, k := range list {
		if k == actor {
			return true
		}
	}
	return false
}
