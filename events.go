package main

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// GameEvent is a decoded contract log. Kind discriminates which fields hold
// meaning.
type GameEvent struct {
	Kind       EventKind
	Player     common.Address // PlayerJoined, SeerChecked, WitchActed actor
	Seat       uint8          // joined seat / checked seat / victim / witch target
	Faction    uint8          // SeerChecked only
	ActionType uint8          // WitchActed only
}

type EventKind int

const (
	EventPlayerJoined EventKind = iota
	EventSeerChecked
	EventNightResolved
	EventWitchActed
)

var (
	topicPlayerJoined  = gameABI.Events["PlayerJoined"].ID
	topicSeerChecked   = gameABI.Events["SeerChecked"].ID
	topicNightResolved = gameABI.Events["NightResolved"].ID
	topicWitchActed    = gameABI.Events["WitchActed"].ID
)

// decodeGameLog turns a raw log into a GameEvent. Logs from other contracts
// or with malformed payloads are dropped, never fatal.
func decodeGameLog(l types.Log) (GameEvent, bool) {
	if len(l.Topics) == 0 {
		return GameEvent{}, false
	}
	switch l.Topics[0] {
	case topicPlayerJoined:
		if len(l.Topics) < 2 {
			return GameEvent{}, false
		}
		out, err := gameABI.Unpack("PlayerJoined", l.Data)
		if err != nil || len(out) != 1 {
			return GameEvent{}, false
		}
		return GameEvent{
			Kind:   EventPlayerJoined,
			Player: common.BytesToAddress(l.Topics[1].Bytes()),
			Seat:   out[0].(uint8),
		}, true

	case topicSeerChecked:
		if len(l.Topics) < 2 {
			return GameEvent{}, false
		}
		out, err := gameABI.Unpack("SeerChecked", l.Data)
		if err != nil || len(out) != 2 {
			return GameEvent{}, false
		}
		return GameEvent{
			Kind:    EventSeerChecked,
			Player:  common.BytesToAddress(l.Topics[1].Bytes()),
			Seat:    out[0].(uint8),
			Faction: out[1].(uint8),
		}, true

	case topicNightResolved:
		out, err := gameABI.Unpack("NightResolved", l.Data)
		if err != nil || len(out) != 1 {
			return GameEvent{}, false
		}
		return GameEvent{Kind: EventNightResolved, Seat: out[0].(uint8)}, true

	case topicWitchActed:
		if len(l.Topics) < 2 {
			return GameEvent{}, false
		}
		out, err := gameABI.Unpack("WitchActed", l.Data)
		if err != nil || len(out) != 2 {
			return GameEvent{}, false
		}
		return GameEvent{
			Kind:       EventWitchActed,
			Player:     common.BytesToAddress(l.Topics[1].Bytes()),
			ActionType: out[0].(uint8),
			Seat:       out[1].(uint8),
		}, true
	}
	return GameEvent{}, false
}

// NightLog folds resolution events into "who the wolves killed tonight". The
// ABI exposes no view for this, so it can only be inferred from logs:
// the most recent NightResolved wins, a WitchActed save clears it, and every
// new day resets it to the unknown sentinel.
type NightLog struct {
	mu     sync.Mutex
	day    uint64
	victim uint8
}

func NewNightLog() *NightLog {
	return &NightLog{victim: NoVictim}
}

// ObserveDay resets the inferred victim when the day counter moves.
func (n *NightLog) ObserveDay(day uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if day != n.day {
		n.day = day
		n.victim = NoVictim
	}
}

// Restore seeds the fold from a historical log after a restart: both day
// and victim land together, so a later ObserveDay with the same day keeps
// the restored victim instead of treating it as a day change.
func (n *NightLog) Restore(day uint64, victim uint8) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.day = day
	n.victim = victim
}

// Apply folds one event into the log.
func (n *NightLog) Apply(ev GameEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch ev.Kind {
	case EventNightResolved:
		n.victim = ev.Seat
	case EventWitchActed:
		if ev.ActionType == WitchSave {
			n.victim = NoVictim
		}
	}
}

// Victim returns the inferred kill for the current night, NoVictim if none
// or unknown.
func (n *NightLog) Victim() uint8 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.victim
}

// Reset drops all derived state, used when game or account changes.
func (n *NightLog) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.day = 0
	n.victim = NoVictim
}

// logSource is the slice of ethclient the watcher needs.
type logSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// backfillBlocks is how far back the watcher looks for the latest
// NightResolved when it starts, so a restart mid-night still knows the
// victim.
const backfillBlocks = 50000

// Watcher feeds contract logs for one (game, account) pair into the night
// log, the secret store (seer results) and an optional sink for everything
// else. It prefers a push subscription and falls back to periodic FilterLogs
// polling on endpoints without subscription support.
type Watcher struct {
	source  logSource
	game    common.Address
	account common.Address
	night   *NightLog
	store   *SecretStore
	snapFn  func() *ChainSnapshot // current day and phase for cache keys and backfill
	onEvent func(GameEvent)

	pollInterval time.Duration
	done         chan struct{}
	wg           sync.WaitGroup
}

func NewWatcher(source logSource, game, account common.Address, night *NightLog, store *SecretStore, snapFn func() *ChainSnapshot, onEvent func(GameEvent)) *Watcher {
	return &Watcher{
		source:       source,
		game:         game,
		account:      account,
		night:        night,
		store:        store,
		snapFn:       snapFn,
		onEvent:      onEvent,
		pollInterval: 3 * time.Second,
		done:         make(chan struct{}),
	}
}

func (w *Watcher) query() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{w.game},
		Topics: [][]common.Hash{{
			topicPlayerJoined, topicSeerChecked, topicNightResolved, topicWitchActed,
		}},
	}
}

// Start backfills the latest night resolution, then watches for new logs.
func (w *Watcher) Start(ctx context.Context) {
	w.backfill(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if !w.subscribe(ctx) {
			w.poll(ctx)
		}
	}()
}

// Stop tears the watcher down. Derived state in the night log is not cleared
// here; callers reset it when switching games or accounts.
func (w *Watcher) Stop() {
	close(w.done)
	w.wg.Wait()
}

func (w *Watcher) backfill(ctx context.Context) {
	var snap *ChainSnapshot
	if w.snapFn != nil {
		snap = w.snapFn()
	}
	if snap == nil {
		DebugLog("Watcher.backfill", "no snapshot yet, skipping victim restore")
		return
	}
	// NightResolved carries no day, so the latest one is only the current
	// night's kill once resolveNight has run this day. Earlier in the cycle
	// it would be a stale event from the previous night.
	switch snap.Phase {
	case PhaseNightWitch, PhaseHunterShot, PhaseDayVote:
	default:
		return
	}

	latest, err := w.source.BlockNumber(ctx)
	if err != nil {
		log.Printf("Watcher: backfill skipped, block number: %v", err)
		return
	}
	from := uint64(0)
	if latest > backfillBlocks {
		from = latest - backfillBlocks
	}
	q := ethereum.FilterQuery{
		Addresses: []common.Address{w.game},
		Topics:    [][]common.Hash{{topicNightResolved}},
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(latest),
	}
	logs, err := w.source.FilterLogs(ctx, q)
	if err != nil {
		log.Printf("Watcher: backfill failed: %v", err)
		return
	}
	if len(logs) == 0 {
		return
	}
	if ev, ok := decodeGameLog(logs[len(logs)-1]); ok {
		w.night.Restore(snap.DayCount, ev.Seat)
		DebugLog("Watcher.backfill", "restored night victim from log: seat %d, day %d", ev.Seat, snap.DayCount)
	}
}

// subscribe runs the push path. Returns false immediately when the endpoint
// does not support subscriptions so the caller can fall back to polling.
func (w *Watcher) subscribe(ctx context.Context) bool {
	ch := make(chan types.Log, 64)
	sub, err := w.source.SubscribeFilterLogs(ctx, w.query(), ch)
	if err != nil {
		log.Printf("Watcher: no log subscription support, polling instead: %v", err)
		return false
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-w.done:
			return true
		case <-ctx.Done():
			return true
		case err := <-sub.Err():
			log.Printf("Watcher: subscription dropped, polling instead: %v", err)
			return false
		case l := <-ch:
			w.handle(l)
		}
	}
}

// poll is the pull path: scan new blocks for matching logs on a timer.
func (w *Watcher) poll(ctx context.Context) {
	var from uint64
	baseline := false
	if latest, err := w.source.BlockNumber(ctx); err == nil {
		from = latest + 1
		baseline = true
	}
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}

		latest, err := w.source.BlockNumber(ctx)
		if err != nil {
			continue
		}
		// A failed startup read leaves no baseline; the first good read
		// seeds the scan position instead of filtering from genesis.
		if !baseline {
			from = latest + 1
			baseline = true
			continue
		}
		if latest < from {
			continue
		}
		q := w.query()
		q.FromBlock = new(big.Int).SetUint64(from)
		q.ToBlock = new(big.Int).SetUint64(latest)
		logs, err := w.source.FilterLogs(ctx, q)
		if err != nil {
			log.Printf("Watcher: poll failed: %v", err)
			continue
		}
		for _, l := range logs {
			w.handle(l)
		}
		from = latest + 1
	}
}

func (w *Watcher) handle(l types.Log) {
	ev, ok := decodeGameLog(l)
	if !ok {
		return
	}

	w.night.Apply(ev)

	// Seer results are private: only cache checks performed by our own
	// account, keyed by (game, account, day).
	if ev.Kind == EventSeerChecked && ev.Player == w.account && w.store != nil {
		day := uint64(0)
		if w.snapFn != nil {
			if snap := w.snapFn(); snap != nil {
				day = snap.DayCount
			}
		}
		if err := w.store.SaveSeerResult(lowerAddr(w.game), lowerAddr(w.account), day, ev.Seat, ev.Faction); err != nil {
			log.Printf("Watcher: cache seer result: %v", err)
		}
	}

	if w.onEvent != nil {
		w.onEvent(ev)
	}
}
