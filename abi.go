package main

import (
	"log"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// gameABIJSON mirrors the deployed WerewolfGame contract. The encoding of
// every call and event here must match the contract byte for byte.
const gameABIJSON = `[
{"inputs":[],"name":"cfg","outputs":[{"internalType":"uint8","name":"minPlayers","type":"uint8"},{"internalType":"uint8","name":"maxPlayers","type":"uint8"},{"internalType":"uint8","name":"wolves","type":"uint8"},{"internalType":"uint256","name":"stake","type":"uint256"},{"internalType":"uint32","name":"tSetup","type":"uint32"},{"internalType":"uint32","name":"tNightCommit","type":"uint32"},{"internalType":"uint32","name":"tNightReveal","type":"uint32"},{"internalType":"uint32","name":"tDayVote","type":"uint32"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"phase","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"deadline","outputs":[{"internalType":"uint64","name":"","type":"uint64"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"dayCount","outputs":[{"internalType":"uint64","name":"","type":"uint64"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"host","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"","type":"address"}],"name":"seatOf","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"seatsCount","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"","type":"uint256"}],"name":"seats","outputs":[{"internalType":"address","name":"player","type":"address"},{"internalType":"bool","name":"alive","type":"bool"},{"internalType":"uint8","name":"role","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"p","type":"address"}],"name":"roleOf","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint8","name":"","type":"uint8"}],"name":"dayTally","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"hunterToShoot","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"","type":"address"}],"name":"hasAntidote","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"","type":"address"}],"name":"hasPoison","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"","type":"address"}],"name":"hasUsedNightAbility","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"join","outputs":[],"stateMutability":"payable","type":"function"},
{"inputs":[{"internalType":"bytes32","name":"commitHash","type":"bytes32"}],"name":"submitWolfCommit","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"uint8","name":"targetSeat","type":"uint8"},{"internalType":"bytes32","name":"salt","type":"bytes32"}],"name":"submitWolfReveal","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"uint8","name":"targetSeat","type":"uint8"}],"name":"seerCheck","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"uint8","name":"actionType","type":"uint8"},{"internalType":"uint8","name":"targetSeat","type":"uint8"}],"name":"witchAct","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"resolveWitch","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"uint8","name":"targetSeat","type":"uint8"}],"name":"vote","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"resolveDay","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"uint8","name":"targetSeat","type":"uint8"}],"name":"hunterShoot","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"start","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"uint8[]","name":"roles","type":"uint8[]"}],"name":"assignRoles","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"advanceToNightReveal","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"advanceToNightResolve","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"resolveNight","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"player","type":"address"},{"indexed":false,"internalType":"uint8","name":"seat","type":"uint8"}],"name":"PlayerJoined","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"seer","type":"address"},{"indexed":false,"internalType":"uint8","name":"targetSeat","type":"uint8"},{"indexed":false,"internalType":"uint8","name":"faction","type":"uint8"}],"name":"SeerChecked","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint8","name":"victimSeat","type":"uint8"}],"name":"NightResolved","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"witch","type":"address"},{"indexed":false,"internalType":"uint8","name":"actionType","type":"uint8"},{"indexed":false,"internalType":"uint8","name":"targetSeat","type":"uint8"}],"name":"WitchActed","type":"event"}
]`

var gameABI = mustParseGameABI()

func mustParseGameABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(gameABIJSON))
	if err != nil {
		log.Fatalf("Failed to parse game ABI: %v", err)
	}
	return parsed
}

// Game phases, owned by the contract. The gateway only reads them.
const (
	PhaseLobby uint8 = iota
	PhaseSetup
	PhaseNightCommit
	PhaseNightReveal
	PhaseNightResolve
	PhaseDayVote
	PhaseEnded
	PhaseNightWitch
	PhaseHunterShot
)

var phaseNames = []string{
	"Lobby", "Setup", "NightCommit", "NightReveal", "NightResolve",
	"DayVote", "Ended", "NightWitch", "HunterShot",
}

// PhaseName returns a display name for a phase, or "Unknown" for values
// outside the contract's enum.
func PhaseName(p uint8) string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "Unknown"
}

// Seat roles as encoded by the contract.
const (
	RoleVillager uint8 = iota
	RoleWolf
	RoleSeer
	RoleHunter
	RoleWitch
)

var roleNames = []string{"Villager", "Wolf", "Seer", "Hunter", "Witch"}

func RoleName(r uint8) string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "Unknown"
}

// Witch action types for witchAct.
const (
	WitchSkip uint8 = iota
	WitchSave
	WitchPoison
)

// NoVictim is the sentinel seat meaning "nobody killed / unknown".
const NoVictim uint8 = 255

// Faction values carried by SeerChecked events.
const (
	FactionVillage uint8 = 0
	FactionWolves  uint8 = 1
)

func FactionName(f uint8) string {
	if f == FactionWolves {
		return "Wolves"
	}
	return "Village"
}

// rolesAssigned reports whether the contract has dealt roles yet. Before this
// point roleOf is meaningless and must not be queried or displayed.
func rolesAssigned(phase uint8, dayCount uint64) bool {
	return phase >= PhaseNightCommit && dayCount > 0
}

// lowerAddr normalizes an address for use in store keys.
func lowerAddr(a common.Address) string {
	return strings.ToLower(a.Hex())
}
