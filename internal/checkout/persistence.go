package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/bookbharat/checkout-api/internal/statestore"
)

// stateKey is the fixed name wizard state is persisted under, scoped per session.
const stateKey = "checkoutState"

// Bridge serializes the navigable subset of checkout state so a session
// survives reloads within one checkout attempt. Persistence is best effort:
// failures are logged and never surface to the wizard.
type Bridge struct {
	store  statestore.Store
	key    string
	logger *zap.Logger

	mu      sync.Mutex
	lastSeq uint64
}

// NewBridge constructs a bridge scoped to the given session.
func NewBridge(store statestore.Store, sessionID string, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		store:  store,
		key:    stateKey + "/" + sessionID,
		logger: logger,
	}
}

// Save persists the snapshot unless a newer one already landed. Sequence
// numbers are assigned under the machine's state lock, so writes arriving
// out of order here cannot leave a stale snapshot as the last one written.
func (b *Bridge) Save(ctx context.Context, snap Snapshot, seq uint64) {
	data, err := json.Marshal(snap)
	if err != nil {
		b.logger.Warn("checkout state serialize failed", zap.Error(err))
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if seq <= b.lastSeq {
		return
	}
	b.lastSeq = seq
	if err := b.store.Put(ctx, b.key, data); err != nil {
		b.logger.Warn("checkout state persist failed", zap.Error(err))
	}
}

// Load reads and parses the persisted snapshot. A missing key or a corrupt
// blob leaves default state untouched and reports false.
func (b *Bridge) Load(ctx context.Context) (Snapshot, bool) {
	data, err := b.store.Get(ctx, b.key)
	if err != nil {
		if !errors.Is(err, statestore.ErrNotFound) {
			b.logger.Warn("checkout state read failed", zap.Error(err))
		}
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		b.logger.Warn("checkout state parse failed; starting fresh", zap.Error(err))
		return Snapshot{}, false
	}
	return snap, true
}

// Clear deletes the persisted snapshot. Called on teardown and after a
// completed cash-on-delivery order.
func (b *Bridge) Clear(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.store.Delete(ctx, b.key); err != nil {
		b.logger.Warn("checkout state delete failed", zap.Error(err))
	}
}
