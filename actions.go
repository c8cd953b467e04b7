package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrorKind classifies an action failure for display. Validation and
// eligibility failures never reach the chain; reverts and transport failures
// come back from it.
type ErrorKind int

const (
	ErrValidation ErrorKind = iota
	ErrEligibility
	ErrRevert
	ErrTransport
)

func (k ErrorKind) String() string {
	switch k {
	case ErrValidation:
		return "validation"
	case ErrEligibility:
		return "eligibility"
	case ErrRevert:
		return "revert"
	default:
		return "transport"
	}
}

// ActionError carries the failure class alongside the human-readable reason.
type ActionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ActionError) Error() string { return e.Err.Error() }
func (e *ActionError) Unwrap() error { return e.Err }

func validationErr(format string, args ...interface{}) error {
	return &ActionError{Kind: ErrValidation, Err: fmt.Errorf(format, args...)}
}

func eligibilityErr(format string, args ...interface{}) error {
	return &ActionError{Kind: ErrEligibility, Err: fmt.Errorf(format, args...)}
}

// classifyTxError wraps an error that came back from the chain. Reverts carry
// the contract's reason string; everything else is a retryable transport or
// wallet problem.
func classifyTxError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "revert") || strings.Contains(msg, "execution reverted") {
		return &ActionError{Kind: ErrRevert, Err: err}
	}
	return &ActionError{Kind: ErrTransport, Err: err}
}

// gameTxer is the mutating half of GameClient, split out for test fakes.
type gameTxer interface {
	Join(ctx context.Context, stake *big.Int) error
	SubmitWolfCommit(ctx context.Context, digest common.Hash) error
	SubmitWolfReveal(ctx context.Context, targetSeat uint8, salt [32]byte) error
	SeerCheck(ctx context.Context, targetSeat uint8) error
	WitchAct(ctx context.Context, actionType, targetSeat uint8) error
	Vote(ctx context.Context, targetSeat uint8) error
	HunterShoot(ctx context.Context, targetSeat uint8) error
	Start(ctx context.Context) error
	AssignRoles(ctx context.Context, roles []uint8) error
	AdvanceToNightReveal(ctx context.Context) error
	AdvanceToNightResolve(ctx context.Context) error
	ResolveNight(ctx context.Context) error
	ResolveWitch(ctx context.Context) error
	ResolveDay(ctx context.Context) error
}

// Actions gates user intent against the latest chain snapshot and submits
// the matching transaction. Every eligibility decision happens before any
// signing, so an action the contract would reject never costs a signature.
type Actions struct {
	txer    gameTxer
	store   *SecretStore
	night   *NightLog
	snapFn  func() *ChainSnapshot
	refresh func(ctx context.Context)

	// baseCtx scopes work that outlives the triggering request, such as the
	// delayed witch resolve. Cancelled on gateway shutdown, never per call.
	baseCtx context.Context

	// resolveDelay is the pause before the single best-effort resolveWitch
	// attempt that follows a witch action.
	resolveDelay time.Duration
}

func NewActions(baseCtx context.Context, txer gameTxer, store *SecretStore, night *NightLog, snapFn func() *ChainSnapshot, refresh func(ctx context.Context)) *Actions {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Actions{
		txer:         txer,
		store:        store,
		night:        night,
		snapFn:       snapFn,
		refresh:      refresh,
		baseCtx:      baseCtx,
		resolveDelay: time.Second,
	}
}

func (a *Actions) snapshot() (*ChainSnapshot, error) {
	snap := a.snapFn()
	if snap == nil {
		return nil, eligibilityErr("chain state not loaded yet, try again shortly")
	}
	return snap, nil
}

func (a *Actions) afterTx(ctx context.Context) {
	if a.refresh != nil {
		a.refresh(ctx)
	}
}

func checkSeatRange(snap *ChainSnapshot, seat uint8) error {
	if int(seat) >= snap.SeatsCount() {
		return validationErr("seat %d out of range, must be in [0, %d)", seat, snap.SeatsCount())
	}
	return nil
}

// ---- player actions ----

// Join pays the exact stake read from the contract config. Hosts run the
// game and never sit at the table.
func (a *Actions) Join(ctx context.Context) error {
	snap, err := a.snapshot()
	if err != nil {
		return err
	}
	if snap.Phase != PhaseLobby {
		return eligibilityErr("joining is only open during Lobby, phase is %s", PhaseName(snap.Phase))
	}
	if snap.IsHost() {
		return eligibilityErr("the host cannot join as a player")
	}
	if snap.Joined() {
		return eligibilityErr("already joined at seat #%d", snap.SeatNumber-1)
	}
	if snap.Stake == nil {
		return eligibilityErr("stake not known yet, waiting for config read")
	}

	if err := a.txer.Join(ctx, snap.Stake); err != nil {
		return classifyTxError(err)
	}
	if err := a.store.SaveLastGame("player", lowerAddr(snap.Account), lowerAddr(snap.Game)); err != nil {
		log.Printf("Actions.Join: remember game: %v", err)
	}
	a.afterTx(ctx)
	return nil
}

// WolfCommit hashes the target with a salt and submits the digest. The salt
// may be supplied by the user; an empty or malformed one is replaced with a
// fresh random salt. On success the exact pair is persisted for the reveal.
func (a *Actions) WolfCommit(ctx context.Context, targetSeat uint8, saltHex string) error {
	snap, err := a.snapshot()
	if err != nil {
		return err
	}
	if snap.Phase != PhaseNightCommit {
		return eligibilityErr("wolf commits are only open during NightCommit, phase is %s", PhaseName(snap.Phase))
	}
	if !snap.Joined() {
		return eligibilityErr("not joined in this game")
	}
	if !snap.Role.Is(RoleWolf) {
		return eligibilityErr("your role is not Wolf")
	}
	if err := checkSeatRange(snap, targetSeat); err != nil {
		return err
	}

	var salt [32]byte
	if IsValidSalt(saltHex) {
		salt, err = ParseSalt(saltHex)
	} else {
		if saltHex != "" {
			return validationErr("salt must be a 0x-prefixed 32-byte hex string")
		}
		salt, err = RandomSalt()
	}
	if err != nil {
		return validationErr("%v", err)
	}

	digest := EncodeCommitment(snap.Game, snap.DayCount, targetSeat, salt)
	if err := a.txer.SubmitWolfCommit(ctx, digest); err != nil {
		return classifyTxError(err)
	}

	if err := a.store.SaveCommitment(lowerAddr(snap.Game), lowerAddr(snap.Account), snap.DayCount, targetSeat, SaltToHex(salt)); err != nil {
		// The commit is on-chain but the reveal inputs failed to persist.
		// Surface loudly: without them this night cannot be revealed.
		return &ActionError{Kind: ErrTransport, Err: fmt.Errorf("commit submitted but saving reveal secrets failed: %w", err)}
	}
	a.afterTx(ctx)
	return nil
}

// WolfReveal replays the pair stored at commit time, verbatim. Nothing is
// recomputed and no user input participates: the contract verifies the
// reveal against the committed digest, so only the original values can pass.
func (a *Actions) WolfReveal(ctx context.Context) error {
	snap, err := a.snapshot()
	if err != nil {
		return err
	}
	if snap.Phase != PhaseNightReveal {
		return eligibilityErr("wolf reveals are only open during NightReveal, phase is %s", PhaseName(snap.Phase))
	}
	if !snap.Joined() {
		return eligibilityErr("not joined in this game")
	}
	if !snap.Role.Is(RoleWolf) {
		return eligibilityErr("your role is not Wolf")
	}

	stored, ok, err := a.store.LoadCommitment(lowerAddr(snap.Game), lowerAddr(snap.Account), snap.DayCount)
	if err != nil {
		return &ActionError{Kind: ErrTransport, Err: err}
	}
	if !ok {
		return eligibilityErr("no stored commitment for day %d, cannot reveal", snap.DayCount)
	}
	salt, err := ParseSalt(stored.Salt)
	if err != nil {
		return validationErr("stored salt is corrupt: %v", err)
	}
	if err := checkSeatRange(snap, stored.TargetSeat); err != nil {
		return err
	}

	if err := a.txer.SubmitWolfReveal(ctx, stored.TargetSeat, salt); err != nil {
		return classifyTxError(err)
	}
	a.afterTx(ctx)
	return nil
}

// StoredReveal exposes what WolfReveal would submit, for display.
func (a *Actions) StoredReveal() (StoredCommitment, bool) {
	snap := a.snapFn()
	if snap == nil {
		return StoredCommitment{}, false
	}
	stored, ok, err := a.store.LoadCommitment(lowerAddr(snap.Game), lowerAddr(snap.Account), snap.DayCount)
	if err != nil || !ok {
		return StoredCommitment{}, false
	}
	return stored, true
}

// SeerCheck submits an investigation. The result arrives later through the
// SeerChecked event, not as a return value.
func (a *Actions) SeerCheck(ctx context.Context, targetSeat uint8) error {
	snap, err := a.snapshot()
	if err != nil {
		return err
	}
	if snap.Phase != PhaseNightCommit {
		return eligibilityErr("seer checks are only open during NightCommit, phase is %s", PhaseName(snap.Phase))
	}
	if !snap.Joined() {
		return eligibilityErr("not joined in this game")
	}
	if !snap.Role.Is(RoleSeer) {
		return eligibilityErr("your role is not Seer")
	}
	if err := checkSeatRange(snap, targetSeat); err != nil {
		return err
	}

	if err := a.txer.SeerCheck(ctx, targetSeat); err != nil {
		return classifyTxError(err)
	}
	a.afterTx(ctx)
	return nil
}

// WitchAct submits skip, save or poison. A save needs the antidote and a
// known, still-alive inferred victim; poison needs the potion and a live
// target. After a successful action one resolveWitch attempt follows on a
// short delay, tolerated to fail when someone else advanced first or the
// deadline has not passed.
func (a *Actions) WitchAct(ctx context.Context, actionType, targetSeat uint8) error {
	snap, err := a.snapshot()
	if err != nil {
		return err
	}
	if snap.Phase != PhaseNightWitch {
		return eligibilityErr("witch actions are only open during NightWitch, phase is %s", PhaseName(snap.Phase))
	}
	if !snap.Joined() {
		return eligibilityErr("not joined in this game")
	}
	if !snap.Role.Is(RoleWitch) {
		return eligibilityErr("your role is not Witch")
	}
	if snap.NightAbilityUsed {
		return eligibilityErr("ability already used this night")
	}

	switch actionType {
	case WitchSkip:
	case WitchSave:
		if !snap.HasAntidote {
			return eligibilityErr("no antidote left")
		}
		victim := a.night.Victim()
		if victim == NoVictim || int(victim) >= snap.SeatsCount() {
			return eligibilityErr("tonight's kill is unknown or nobody died, nothing to save")
		}
		if !snap.SeatAlive(victim) {
			return eligibilityErr("victim seat #%d is already dead, cannot save", victim)
		}
	case WitchPoison:
		if !snap.HasPoison {
			return eligibilityErr("no poison left")
		}
		if err := checkSeatRange(snap, targetSeat); err != nil {
			return err
		}
		if !snap.SeatAlive(targetSeat) {
			return validationErr("target seat #%d is dead, poison needs a living target", targetSeat)
		}
	default:
		return validationErr("unknown witch action %d, want skip=0, save=1 or poison=2", actionType)
	}

	if err := a.txer.WitchAct(ctx, actionType, targetSeat); err != nil {
		return classifyTxError(err)
	}
	a.afterTx(ctx)

	a.scheduleWitchResolve()
	return nil
}

// scheduleWitchResolve fires the single best-effort advance. One attempt,
// never retried: the host or the next refresh covers the rest. The attempt
// runs on the gateway's lifetime context, not the request's, which is
// cancelled as soon as the handler returns.
func (a *Actions) scheduleWitchResolve() {
	go func() {
		select {
		case <-a.baseCtx.Done():
			return
		case <-time.After(a.resolveDelay):
		}
		snap := a.snapFn()
		if snap == nil || snap.Phase != PhaseNightWitch {
			return
		}
		ctx, cancel := context.WithTimeout(a.baseCtx, time.Minute)
		defer cancel()
		if err := a.txer.ResolveWitch(ctx); err != nil {
			// Likely already resolved by someone else or the deadline has
			// not passed yet.
			log.Printf("Actions: witch auto-resolve attempt failed: %v", err)
			return
		}
		a.afterTx(ctx)
	}()
}

// Vote casts or changes a day vote. Repeated votes overwrite the previous
// one on the contract side.
func (a *Actions) Vote(ctx context.Context, targetSeat uint8) error {
	snap, err := a.snapshot()
	if err != nil {
		return err
	}
	if snap.Phase != PhaseDayVote {
		return eligibilityErr("voting is only open during DayVote, phase is %s", PhaseName(snap.Phase))
	}
	if !snap.Joined() || !snap.Alive() {
		return eligibilityErr("not joined or not alive, cannot vote")
	}
	if err := checkSeatRange(snap, targetSeat); err != nil {
		return err
	}

	if err := a.txer.Vote(ctx, targetSeat); err != nil {
		return classifyTxError(err)
	}
	a.afterTx(ctx)
	return nil
}

// HunterShoot fires the dying hunter's shot. Only the seat the contract
// flags as owing a shot may act.
func (a *Actions) HunterShoot(ctx context.Context, targetSeat uint8) error {
	snap, err := a.snapshot()
	if err != nil {
		return err
	}
	if snap.Phase != PhaseHunterShot {
		return eligibilityErr("hunter shots are only open during HunterShot, phase is %s", PhaseName(snap.Phase))
	}
	if snap.HunterToShoot == 0 || snap.SeatNumber != snap.HunterToShoot {
		return eligibilityErr("you are not the hunter owed a shot")
	}
	if err := checkSeatRange(snap, targetSeat); err != nil {
		return err
	}
	if !snap.SeatAlive(targetSeat) {
		return validationErr("target seat #%d is already dead", targetSeat)
	}

	if err := a.txer.HunterShoot(ctx, targetSeat); err != nil {
		return classifyTxError(err)
	}
	a.afterTx(ctx)
	return nil
}

// ---- host actions ----

// HostAction names a host-only phase advance.
type HostAction string

const (
	HostStart                 HostAction = "start"
	HostAssignRoles           HostAction = "assignRoles"
	HostAdvanceToNightReveal  HostAction = "advanceToNightReveal"
	HostAdvanceToNightResolve HostAction = "advanceToNightResolve"
	HostResolveNight          HostAction = "resolveNight"
	HostResolveWitch          HostAction = "resolveWitch"
	HostResolveDay            HostAction = "resolveDay"
)

// hostActionPhase maps each advance to the phase it leaves.
var hostActionPhase = map[HostAction]uint8{
	HostStart:                 PhaseLobby,
	HostAssignRoles:           PhaseSetup,
	HostAdvanceToNightReveal:  PhaseNightCommit,
	HostAdvanceToNightResolve: PhaseNightReveal,
	HostResolveNight:          PhaseNightResolve,
	HostResolveWitch:          PhaseNightWitch,
	HostResolveDay:            PhaseDayVote,
}

// Advance runs a host-only transition. roles is only consulted for
// assignRoles and must then cover every seat.
func (a *Actions) Advance(ctx context.Context, action HostAction, roles []uint8) error {
	snap, err := a.snapshot()
	if err != nil {
		return err
	}
	if !snap.IsHost() {
		return eligibilityErr("only the host may advance phases")
	}
	wantPhase, ok := hostActionPhase[action]
	if !ok {
		return validationErr("unknown host action %q", action)
	}
	if snap.Phase != wantPhase {
		return eligibilityErr("%s applies to phase %s, current phase is %s",
			action, PhaseName(wantPhase), PhaseName(snap.Phase))
	}

	switch action {
	case HostStart:
		err = a.txer.Start(ctx)
	case HostAssignRoles:
		if len(roles) != snap.SeatsCount() {
			return validationErr("need exactly %d roles, got %d", snap.SeatsCount(), len(roles))
		}
		for i, r := range roles {
			if r > RoleWitch {
				return validationErr("roles[%d]=%d is not a valid role", i, r)
			}
		}
		err = a.txer.AssignRoles(ctx, roles)
	case HostAdvanceToNightReveal:
		err = a.txer.AdvanceToNightReveal(ctx)
	case HostAdvanceToNightResolve:
		err = a.txer.AdvanceToNightResolve(ctx)
	case HostResolveNight:
		err = a.txer.ResolveNight(ctx)
	case HostResolveWitch:
		err = a.txer.ResolveWitch(ctx)
	case HostResolveDay:
		err = a.txer.ResolveDay(ctx)
	}
	if err != nil {
		return classifyTxError(err)
	}
	if err := a.store.SaveLastGame("host", lowerAddr(snap.Account), lowerAddr(snap.Game)); err != nil {
		log.Printf("Actions.Advance: remember game: %v", err)
	}
	a.afterTx(ctx)
	return nil
}
