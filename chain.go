package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// GameConfig mirrors the contract's cfg() struct.
type GameConfig struct {
	MinPlayers   uint8
	MaxPlayers   uint8
	Wolves       uint8
	Stake        *big.Int
	TSetup       uint32
	TNightCommit uint32
	TNightReveal uint32
	TDayVote     uint32
}

// SeatView is one row of the contract's seats array.
type SeatView struct {
	Player common.Address `json:"player"`
	Alive  bool           `json:"alive"`
	Role   uint8          `json:"role"`
}

// GameClient is the typed boundary to one WerewolfGame contract. View calls
// use the session account as caller context, which matters for roleOf: the
// contract only answers "self" queries until the game ends.
type GameClient struct {
	session  *Session
	address  common.Address
	contract *bind.BoundContract
}

func NewGameClient(session *Session, address common.Address) *GameClient {
	contract := bind.NewBoundContract(address, gameABI, session.Client(), session.Client(), session.Client())
	return &GameClient{session: session, address: address, contract: contract}
}

func (g *GameClient) Address() common.Address {
	return g.address
}

func (g *GameClient) callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{From: g.session.Account(), Context: ctx}
}

func (g *GameClient) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := g.contract.Call(g.callOpts(ctx), &out, method, params...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

// ---- views ----

func (g *GameClient) Cfg(ctx context.Context) (GameConfig, error) {
	out, err := g.call(ctx, "cfg")
	if err != nil {
		return GameConfig{}, err
	}
	if len(out) != 8 {
		return GameConfig{}, fmt.Errorf("cfg: unexpected output arity %d", len(out))
	}
	return GameConfig{
		MinPlayers:   out[0].(uint8),
		MaxPlayers:   out[1].(uint8),
		Wolves:       out[2].(uint8),
		Stake:        out[3].(*big.Int),
		TSetup:       out[4].(uint32),
		TNightCommit: out[5].(uint32),
		TNightReveal: out[6].(uint32),
		TDayVote:     out[7].(uint32),
	}, nil
}

func (g *GameClient) Phase(ctx context.Context) (uint8, error) {
	out, err := g.call(ctx, "phase")
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

func (g *GameClient) Deadline(ctx context.Context) (uint64, error) {
	out, err := g.call(ctx, "deadline")
	if err != nil {
		return 0, err
	}
	return out[0].(uint64), nil
}

func (g *GameClient) DayCount(ctx context.Context) (uint64, error) {
	out, err := g.call(ctx, "dayCount")
	if err != nil {
		return 0, err
	}
	return out[0].(uint64), nil
}

func (g *GameClient) Host(ctx context.Context) (common.Address, error) {
	out, err := g.call(ctx, "host")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// SeatOf returns the 1-based seat number for an address; 0 means not joined.
func (g *GameClient) SeatOf(ctx context.Context, player common.Address) (uint8, error) {
	out, err := g.call(ctx, "seatOf", player)
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

func (g *GameClient) SeatsCount(ctx context.Context) (int, error) {
	out, err := g.call(ctx, "seatsCount")
	if err != nil {
		return 0, err
	}
	return int(out[0].(*big.Int).Int64()), nil
}

func (g *GameClient) Seat(ctx context.Context, index int) (SeatView, error) {
	out, err := g.call(ctx, "seats", big.NewInt(int64(index)))
	if err != nil {
		return SeatView{}, err
	}
	return SeatView{
		Player: out[0].(common.Address),
		Alive:  out[1].(bool),
		Role:   out[2].(uint8),
	}, nil
}

// RoleOf asks the contract for a player's role. Callers must only pass the
// session's own account before the game ends; the contract rejects anything
// broader.
func (g *GameClient) RoleOf(ctx context.Context, player common.Address) (uint8, error) {
	out, err := g.call(ctx, "roleOf", player)
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

func (g *GameClient) DayTally(ctx context.Context, seat uint8) (uint8, error) {
	out, err := g.call(ctx, "dayTally", seat)
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

// HunterToShoot returns the 1-based seat currently owed a shot; 0 means none.
func (g *GameClient) HunterToShoot(ctx context.Context) (uint8, error) {
	out, err := g.call(ctx, "hunterToShoot")
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

func (g *GameClient) HasAntidote(ctx context.Context, player common.Address) (bool, error) {
	out, err := g.call(ctx, "hasAntidote", player)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (g *GameClient) HasPoison(ctx context.Context, player common.Address) (bool, error) {
	out, err := g.call(ctx, "hasPoison", player)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (g *GameClient) HasUsedNightAbility(ctx context.Context, player common.Address) (bool, error) {
	out, err := g.call(ctx, "hasUsedNightAbility", player)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// ---- transactions ----

// transact signs, submits and waits for one contract call to be mined. A
// mined-but-reverted transaction is reported as an error.
func (g *GameClient) transact(ctx context.Context, value *big.Int, method string, params ...interface{}) error {
	opts, err := g.session.TransactOpts(ctx, value)
	if err != nil {
		return err
	}
	tx, err := g.contract.Transact(opts, method, params...)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	receipt, err := bind.WaitMined(ctx, g.session.Client(), tx)
	if err != nil {
		return fmt.Errorf("%s: wait mined: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%s: transaction %s reverted", method, tx.Hash().Hex())
	}
	DebugLog("GameClient.transact", "%s mined in block %s (tx %s)", method, receipt.BlockNumber, tx.Hash().Hex())
	return nil
}

func (g *GameClient) Join(ctx context.Context, stake *big.Int) error {
	return g.transact(ctx, stake, "join")
}

func (g *GameClient) SubmitWolfCommit(ctx context.Context, digest common.Hash) error {
	return g.transact(ctx, nil, "submitWolfCommit", digest)
}

func (g *GameClient) SubmitWolfReveal(ctx context.Context, targetSeat uint8, salt [32]byte) error {
	return g.transact(ctx, nil, "submitWolfReveal", targetSeat, salt)
}

func (g *GameClient) SeerCheck(ctx context.Context, targetSeat uint8) error {
	return g.transact(ctx, nil, "seerCheck", targetSeat)
}

func (g *GameClient) WitchAct(ctx context.Context, actionType, targetSeat uint8) error {
	return g.transact(ctx, nil, "witchAct", actionType, targetSeat)
}

func (g *GameClient) Vote(ctx context.Context, targetSeat uint8) error {
	return g.transact(ctx, nil, "vote", targetSeat)
}

func (g *GameClient) HunterShoot(ctx context.Context, targetSeat uint8) error {
	return g.transact(ctx, nil, "hunterShoot", targetSeat)
}

func (g *GameClient) Start(ctx context.Context) error {
	return g.transact(ctx, nil, "start")
}

func (g *GameClient) AssignRoles(ctx context.Context, roles []uint8) error {
	return g.transact(ctx, nil, "assignRoles", roles)
}

func (g *GameClient) AdvanceToNightReveal(ctx context.Context) error {
	return g.transact(ctx, nil, "advanceToNightReveal")
}

func (g *GameClient) AdvanceToNightResolve(ctx context.Context) error {
	return g.transact(ctx, nil, "advanceToNightResolve")
}

func (g *GameClient) ResolveNight(ctx context.Context) error {
	return g.transact(ctx, nil, "resolveNight")
}

func (g *GameClient) ResolveWitch(ctx context.Context) error {
	return g.transact(ctx, nil, "resolveWitch")
}

func (g *GameClient) ResolveDay(ctx context.Context) error {
	return g.transact(ctx, nil, "resolveDay")
}
