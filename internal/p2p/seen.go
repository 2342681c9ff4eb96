package p2p

import (
	"time"

	"github.com/gabapcia/powchain/internal/ledger"

	cache "github.com/patrickmn/go-cache"
)

// seenWindow remembers recently gossiped ids so each one is handled and
// relayed at most once per window.
type seenWindow struct {
	items *cache.Cache
}

func newSeenWindow(ttl time.Duration) *seenWindow {
	return &seenWindow{
		items: cache.New(ttl, 2*ttl),
	}
}

// firstSeen records id and reports whether it was absent from the window.
func (w *seenWindow) firstSeen(kind MessageType, id ledger.Hash) bool {
	return w.items.Add(string(kind)+":"+id.String(), struct{}{}, cache.DefaultExpiration) == nil
}
