package notice

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTTL is how long a notice stays visible
const DefaultTTL = 1800 * time.Millisecond

const maxKept = 50

// Notice is a transient message for the user
type Notice struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Board collects notices and celebrations emitted by the session machine.
// Notices dismiss themselves once their TTL has passed.
type Board struct {
	mu           sync.Mutex
	ttl          time.Duration
	now          func() time.Time
	notices      []Notice
	celebrations int
	logger       *zap.Logger
}

// NewBoard creates an empty board. ttl <= 0 uses DefaultTTL.
func NewBoard(ttl time.Duration, logger *zap.Logger) *Board {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Board{ttl: ttl, now: time.Now, logger: logger}
}

// Notify records a notice. It never blocks on a reader.
func (b *Board) Notify(message string) {
	now := b.now()
	n := Notice{
		ID:        uuid.New().String(),
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(b.ttl),
	}

	b.mu.Lock()
	b.notices = append(b.pruneLocked(now), n)
	if len(b.notices) > maxKept {
		b.notices = b.notices[len(b.notices)-maxKept:]
	}
	b.mu.Unlock()

	b.logger.Info("Notice", zap.String("id", n.ID), zap.String("message", message))
}

// Celebrate counts one successful analysis
func (b *Board) Celebrate() {
	b.mu.Lock()
	b.celebrations++
	count := b.celebrations
	b.mu.Unlock()

	b.logger.Debug("Celebration", zap.Int("count", count))
}

// Active returns notices that have not expired yet, oldest first
func (b *Board) Active() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = b.pruneLocked(b.now())
	return append([]Notice(nil), b.notices...)
}

// Celebrations returns how many successful analyses were celebrated
func (b *Board) Celebrations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.celebrations
}

func (b *Board) pruneLocked(now time.Time) []Notice {
	kept := b.notices[:0]
	for _, n := range b.notices {
		if now.Before(n.ExpiresAt) {
			kept = append(kept, n)
		}
	}
	return kept
}
