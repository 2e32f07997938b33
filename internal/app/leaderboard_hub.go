package app

import (
	"context"
	"log"
	"sync"

	"medquiz-service/internal/domain"
)

// LeaderboardHub pushes fresh leaderboard snapshots to subscribers after scored answers.
// Answers only signal the hub; Run recomputes the watched boards, so a burst of answers
// costs one refresh.
type LeaderboardHub struct {
	stats   *StatsService
	pending chan struct{}

	mu   sync.Mutex
	subs map[string]map[chan domain.Leaderboard]struct{}
}

func NewLeaderboardHub(stats *StatsService) *LeaderboardHub {
	return &LeaderboardHub{
		stats:   stats,
		pending: make(chan struct{}, 1),
		subs:    make(map[string]map[chan domain.Leaderboard]struct{}),
	}
}

// Subscribe returns a channel primed with the current snapshot for category ("" = overall).
// The cancel func must be called to release the subscription.
func (h *LeaderboardHub) Subscribe(ctx context.Context, category string) (<-chan domain.Leaderboard, func(), error) {
	snapshot, err := h.stats.Leaderboard(ctx, category)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.Leaderboard, 8)
	h.mu.Lock()
	if h.subs[category] == nil {
		h.subs[category] = make(map[chan domain.Leaderboard]struct{})
	}
	h.subs[category][ch] = struct{}{}
	ch <- snapshot
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[category]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, category)
				}
			}
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// ActivityRecorded marks the watched leaderboards stale. It never blocks the caller.
func (h *LeaderboardHub) ActivityRecorded(_ context.Context, record domain.ActivityRecord) error {
	if record.Kind == domain.ActivityAskAI {
		return nil
	}
	select {
	case h.pending <- struct{}{}:
	default:
	}
	return nil
}

// Run refreshes stale leaderboards until ctx is done.
func (h *LeaderboardHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.pending:
			h.Refresh(ctx)
		}
	}
}

// Refresh recomputes every watched leaderboard from one read of the store and broadcasts it.
func (h *LeaderboardHub) Refresh(ctx context.Context) {
	h.mu.Lock()
	categories := make([]string, 0, len(h.subs))
	for category := range h.subs {
		categories = append(categories, category)
	}
	h.mu.Unlock()
	if len(categories) == 0 {
		return
	}

	boards, err := h.stats.Leaderboards(ctx, categories)
	if err != nil {
		log.Printf("leaderboard hub: refresh %v: %v", categories, err)
		return
	}
	h.mu.Lock()
	for category, board := range boards {
		h.broadcastLocked(category, board)
	}
	h.mu.Unlock()
}

// broadcastLocked never blocks; a full subscriber loses its oldest snapshot.
func (h *LeaderboardHub) broadcastLocked(category string, board domain.Leaderboard) {
	for ch := range h.subs[category] {
		select {
		case ch <- board:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- board:
			default:
			}
		}
	}
}
