package main

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// fakeViews serves canned contract state and can be flipped into a failing
// mode to exercise the keep-last-snapshot path.
type fakeViews struct {
	mu sync.Mutex

	phase    uint8
	day      uint64
	deadline uint64
	host     common.Address
	stake    *big.Int
	seats    []SeatView
	seatOf   map[common.Address]uint8
	roleOf   map[common.Address]uint8
	roleErr  error

	antidote bool
	poison   bool
	used     bool
	tally    []uint8
	hunter   uint8

	failAll error
}

func (f *fakeViews) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failAll
}

func (f *fakeViews) Address() common.Address { return gameAddr }

func (f *fakeViews) Cfg(ctx context.Context) (GameConfig, error) {
	if err := f.fail(); err != nil {
		return GameConfig{}, err
	}
	return GameConfig{Stake: f.stake}, nil
}
func (f *fakeViews) Phase(ctx context.Context) (uint8, error)     { return f.phase, f.fail() }
func (f *fakeViews) Deadline(ctx context.Context) (uint64, error) { return f.deadline, f.fail() }
func (f *fakeViews) DayCount(ctx context.Context) (uint64, error) { return f.day, f.fail() }
func (f *fakeViews) Host(ctx context.Context) (common.Address, error) {
	return f.host, f.fail()
}
func (f *fakeViews) SeatOf(ctx context.Context, player common.Address) (uint8, error) {
	return f.seatOf[player], f.fail()
}
func (f *fakeViews) SeatsCount(ctx context.Context) (int, error) { return len(f.seats), f.fail() }
func (f *fakeViews) Seat(ctx context.Context, index int) (SeatView, error) {
	if err := f.fail(); err != nil {
		return SeatView{}, err
	}
	return f.seats[index], nil
}
func (f *fakeViews) RoleOf(ctx context.Context, player common.Address) (uint8, error) {
	if f.roleErr != nil {
		return 0, f.roleErr
	}
	return f.roleOf[player], f.fail()
}
func (f *fakeViews) DayTally(ctx context.Context, seat uint8) (uint8, error) {
	if err := f.fail(); err != nil {
		return 0, err
	}
	return f.tally[seat], nil
}
func (f *fakeViews) HunterToShoot(ctx context.Context) (uint8, error) { return f.hunter, f.fail() }
func (f *fakeViews) HasAntidote(ctx context.Context, player common.Address) (bool, error) {
	return f.antidote, f.fail()
}
func (f *fakeViews) HasPoison(ctx context.Context, player common.Address) (bool, error) {
	return f.poison, f.fail()
}
func (f *fakeViews) HasUsedNightAbility(ctx context.Context, player common.Address) (bool, error) {
	return f.used, f.fail()
}

func lobbyViews() *fakeViews {
	return &fakeViews{
		phase: PhaseLobby,
		host:  hostAddr,
		stake: big.NewInt(1000),
		seats: []SeatView{
			{Player: myAddr, Alive: true},
			{Player: otherAddr, Alive: true},
		},
		seatOf: map[common.Address]uint8{myAddr: 1, otherAddr: 2},
		roleOf: map[common.Address]uint8{myAddr: RoleWolf},
	}
}

func TestReaderBasicSnapshot(t *testing.T) {
	views := lobbyViews()
	r := NewReader(views, myAddr, time.Second, nil)

	snap, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Phase != PhaseLobby || snap.SeatsCount() != 2 || !snap.Joined() {
		t.Fatalf("snapshot %+v", snap)
	}
	if snap.Stake.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("stake %v", snap.Stake)
	}
	if got := r.Snapshot(); got != snap {
		t.Fatal("Snapshot does not return the last refresh result")
	}
}

func TestReaderRoleHiddenBeforeAssignment(t *testing.T) {
	// The contract would answer roleOf even now, but before NightCommit of
	// day 1 the value is meaningless and must not be surfaced.
	views := lobbyViews()
	r := NewReader(views, myAddr, time.Second, nil)

	snap, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Role.Assigned {
		t.Fatalf("role surfaced during lobby: %s", snap.Role)
	}
	if snap.Role.Is(RoleWolf) {
		t.Fatal("unassigned role compares equal to Wolf")
	}
}

func TestReaderRoleVisibleAfterAssignment(t *testing.T) {
	views := lobbyViews()
	views.phase = PhaseNightCommit
	views.day = 1
	r := NewReader(views, myAddr, time.Second, nil)

	snap, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !snap.Role.Is(RoleWolf) {
		t.Fatalf("role = %s, want Wolf", snap.Role)
	}
}

func TestReaderNoRoleQueryWhenNotJoined(t *testing.T) {
	views := lobbyViews()
	views.phase = PhaseNightCommit
	views.day = 1
	views.seatOf = map[common.Address]uint8{} // we never joined
	views.roleErr = errors.New("roleOf must not be called for outsiders")
	r := NewReader(views, myAddr, time.Second, nil)

	snap, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Joined() || snap.Role.Assigned {
		t.Fatalf("snapshot %+v", snap)
	}
}

func TestReaderRoleErrorIsNotFatal(t *testing.T) {
	views := lobbyViews()
	views.phase = PhaseNightCommit
	views.day = 1
	views.roleErr = errors.New("execution reverted: not yours")
	r := NewReader(views, myAddr, time.Second, nil)

	snap, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed on a role read error: %v", err)
	}
	if snap.Role.Assigned {
		t.Fatal("role marked assigned despite the read error")
	}
}

func TestReaderKeepsLastSnapshotOnError(t *testing.T) {
	views := lobbyViews()
	r := NewReader(views, myAddr, time.Second, nil)

	first, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	views.mu.Lock()
	views.failAll = errors.New("rpc down")
	views.mu.Unlock()

	if _, err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh to fail")
	}
	if got := r.Snapshot(); got != first {
		t.Fatal("failed refresh replaced the last good snapshot")
	}
}

func TestReaderTallyOnlyDuringDayVote(t *testing.T) {
	views := lobbyViews()
	views.tally = []uint8{2, 1}

	r := NewReader(views, myAddr, time.Second, nil)
	snap, _ := r.Refresh(context.Background())
	if snap.Tally != nil {
		t.Fatal("tally populated outside DayVote")
	}

	views.phase = PhaseDayVote
	views.day = 1
	snap, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(snap.Tally) != 2 || snap.Tally[0] != 2 || snap.Tally[1] != 1 {
		t.Fatalf("tally %v", snap.Tally)
	}
}

func TestReaderHunterOnlyDuringHunterShot(t *testing.T) {
	views := lobbyViews()
	views.hunter = 2

	r := NewReader(views, myAddr, time.Second, nil)
	snap, _ := r.Refresh(context.Background())
	if snap.HunterToShoot != 0 {
		t.Fatal("hunterToShoot populated outside HunterShot")
	}

	views.phase = PhaseHunterShot
	views.day = 1
	snap, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.HunterToShoot != 2 {
		t.Fatalf("hunterToShoot = %d, want 2", snap.HunterToShoot)
	}
}

func TestReaderPublishesToSubscriber(t *testing.T) {
	views := lobbyViews()
	var published *ChainSnapshot
	r := NewReader(views, myAddr, time.Second, func(snap *ChainSnapshot) { published = snap })

	snap, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if published != snap {
		t.Fatal("subscriber did not receive the new snapshot")
	}
}

func TestRoleStatusString(t *testing.T) {
	if got := (RoleStatus{}).String(); got != "Unassigned" {
		t.Fatalf("got %q", got)
	}
	if got := (RoleStatus{Assigned: true, Role: RoleSeer}).String(); got != "Seer" {
		t.Fatalf("got %q", got)
	}
}
