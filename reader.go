package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// seatReadBatch bounds how many seats() calls run concurrently during one
// refresh, so a large table does not flood the RPC endpoint.
const seatReadBatch = 10

// RoleStatus is a tagged variant: a role value exists only once the contract
// has assigned roles. An unassigned status has no role at all, which keeps
// "don't act on an unassigned role" out of nil-check territory.
type RoleStatus struct {
	Assigned bool  `json:"assigned"`
	Role     uint8 `json:"role,omitempty"`
}

func (r RoleStatus) Is(role uint8) bool {
	return r.Assigned && r.Role == role
}

func (r RoleStatus) String() string {
	if !r.Assigned {
		return "Unassigned"
	}
	return RoleName(r.Role)
}

// ChainSnapshot is one consistent-enough read of everything the gateway
// renders and gates on. The contract remains the source of truth; a snapshot
// is only ever a recent approximation of it.
type ChainSnapshot struct {
	Game     common.Address `json:"game"`
	Account  common.Address `json:"account"`
	Phase    uint8          `json:"phase"`
	DayCount uint64         `json:"dayCount"`
	Deadline uint64         `json:"deadline"`
	Host     common.Address `json:"host"`
	Stake    *big.Int       `json:"stake"`

	Seats []SeatView `json:"seats"`

	// SeatNumber is 1-based; 0 means the account has not joined.
	SeatNumber uint8      `json:"seatNumber"`
	Role       RoleStatus `json:"role"`

	HasAntidote      bool `json:"hasAntidote"`
	HasPoison        bool `json:"hasPoison"`
	NightAbilityUsed bool `json:"nightAbilityUsed"`

	// Tally is populated during DayVote, HunterToShoot during HunterShot.
	Tally         []uint8 `json:"tally,omitempty"`
	HunterToShoot uint8   `json:"hunterToShoot"`

	TakenAt time.Time `json:"takenAt"`
}

func (s *ChainSnapshot) SeatsCount() int {
	return len(s.Seats)
}

// Joined reports whether the account occupies a seat.
func (s *ChainSnapshot) Joined() bool {
	return s.SeatNumber > 0
}

// MySeat returns the 0-based seat index for the account.
func (s *ChainSnapshot) MySeat() (int, bool) {
	if !s.Joined() {
		return 0, false
	}
	return int(s.SeatNumber) - 1, true
}

// Alive reports whether the account's own seat is still alive.
func (s *ChainSnapshot) Alive() bool {
	idx, ok := s.MySeat()
	if !ok || idx >= len(s.Seats) {
		return false
	}
	return s.Seats[idx].Alive
}

// SeatAlive reports aliveness of an arbitrary 0-based seat.
func (s *ChainSnapshot) SeatAlive(seat uint8) bool {
	if int(seat) >= len(s.Seats) {
		return false
	}
	return s.Seats[seat].Alive
}

func (s *ChainSnapshot) IsHost() bool {
	return s.Host == s.Account
}

// gameViews is the read half of GameClient, split out so the reader can be
// fed a fake in tests.
type gameViews interface {
	Address() common.Address
	Cfg(ctx context.Context) (GameConfig, error)
	Phase(ctx context.Context) (uint8, error)
	Deadline(ctx context.Context) (uint64, error)
	DayCount(ctx context.Context) (uint64, error)
	Host(ctx context.Context) (common.Address, error)
	SeatOf(ctx context.Context, player common.Address) (uint8, error)
	SeatsCount(ctx context.Context) (int, error)
	Seat(ctx context.Context, index int) (SeatView, error)
	RoleOf(ctx context.Context, player common.Address) (uint8, error)
	DayTally(ctx context.Context, seat uint8) (uint8, error)
	HunterToShoot(ctx context.Context) (uint8, error)
	HasAntidote(ctx context.Context, player common.Address) (bool, error)
	HasPoison(ctx context.Context, player common.Address) (bool, error)
	HasUsedNightAbility(ctx context.Context, player common.Address) (bool, error)
}

// Reader polls the contract on a fixed interval and retains the last good
// snapshot across transient RPC failures. One Reader serves every consumer;
// views subscribe to its updates instead of running their own timers.
type Reader struct {
	views    gameViews
	account  common.Address
	interval time.Duration
	onUpdate func(*ChainSnapshot)

	mu   sync.RWMutex
	snap *ChainSnapshot

	done chan struct{}
	wg   sync.WaitGroup
}

func NewReader(views gameViews, account common.Address, interval time.Duration, onUpdate func(*ChainSnapshot)) *Reader {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Reader{
		views:    views,
		account:  account,
		interval: interval,
		onUpdate: onUpdate,
		done:     make(chan struct{}),
	}
}

// Snapshot returns the last successful read, or nil before the first one.
func (r *Reader) Snapshot() *ChainSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Start launches the polling loop. Refreshes never overlap: the next poll is
// scheduled only after the previous one settles.
func (r *Reader) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			if _, err := r.Refresh(ctx); err != nil {
				log.Printf("Reader: refresh failed, keeping last snapshot: %v", err)
			}
			select {
			case <-r.done:
				return
			case <-ctx.Done():
				return
			case <-time.After(r.interval):
			}
		}
	}()
}

// Stop cancels the polling loop and waits for it to exit.
func (r *Reader) Stop() {
	close(r.done)
	r.wg.Wait()
}

// Refresh performs one full read and publishes the snapshot. On error the
// previous snapshot stays in place so consumers never flicker back to empty.
func (r *Reader) Refresh(ctx context.Context) (*ChainSnapshot, error) {
	snap, err := r.read(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()

	if r.onUpdate != nil {
		r.onUpdate(snap)
	}
	return snap, nil
}

func (r *Reader) read(ctx context.Context) (*ChainSnapshot, error) {
	snap := &ChainSnapshot{
		Game:    r.views.Address(),
		Account: r.account,
		TakenAt: time.Now(),
	}

	phase, err := r.views.Phase(ctx)
	if err != nil {
		return nil, err
	}
	snap.Phase = phase

	day, err := r.views.DayCount(ctx)
	if err != nil {
		return nil, err
	}
	snap.DayCount = day

	deadline, err := r.views.Deadline(ctx)
	if err != nil {
		return nil, err
	}
	snap.Deadline = deadline

	host, err := r.views.Host(ctx)
	if err != nil {
		return nil, err
	}
	snap.Host = host

	cfg, err := r.views.Cfg(ctx)
	if err != nil {
		return nil, err
	}
	snap.Stake = cfg.Stake

	count, err := r.views.SeatsCount(ctx)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("seatsCount: negative count %d", count)
	}

	seats := make([]SeatView, count)
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(seatReadBatch)
	for i := 0; i < count; i++ {
		grp.Go(func() error {
			seat, err := r.views.Seat(gctx, i)
			if err != nil {
				return err
			}
			seats[i] = seat
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	snap.Seats = seats

	seatNum, err := r.views.SeatOf(ctx, r.account)
	if err != nil {
		return nil, err
	}
	snap.SeatNumber = seatNum

	// Role is queried only once the contract has assigned it, and only for
	// our own account: roleOf is self-only until the game ends.
	if snap.Joined() && rolesAssigned(phase, day) {
		role, err := r.views.RoleOf(ctx, r.account)
		if err != nil {
			DebugLog("Reader.read", "roleOf not readable yet: %v", err)
		} else {
			snap.Role = RoleStatus{Assigned: true, Role: role}
		}
	}

	// Witch flags are cheap and harmless to read for any role.
	if snap.Joined() {
		if v, err := r.views.HasAntidote(ctx, r.account); err == nil {
			snap.HasAntidote = v
		}
		if v, err := r.views.HasPoison(ctx, r.account); err == nil {
			snap.HasPoison = v
		}
		if v, err := r.views.HasUsedNightAbility(ctx, r.account); err == nil {
			snap.NightAbilityUsed = v
		}
	}

	if phase == PhaseDayVote {
		tally := make([]uint8, count)
		for i := 0; i < count; i++ {
			v, err := r.views.DayTally(ctx, uint8(i))
			if err != nil {
				return nil, err
			}
			tally[i] = v
		}
		snap.Tally = tally
	}

	if phase == PhaseHunterShot {
		h, err := r.views.HunterToShoot(ctx)
		if err != nil {
			return nil, err
		}
		snap.HunterToShoot = h
	}

	return snap, nil
}
