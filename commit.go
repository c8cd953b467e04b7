package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// The contract verifies a wolf reveal by recomputing
// keccak256(abi.encode(address(this), dayCount, targetSeat, salt)) and
// comparing it against the stored commitment. commitArgs is that exact
// argument tuple: (address, uint64, uint8, bytes32), standard ABI encoding,
// one 32-byte word per field. Any change here breaks every reveal.
var commitArgs abi.Arguments

func init() {
	addrType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	u64Type, err := abi.NewType("uint64", "", nil)
	if err != nil {
		panic(err)
	}
	u8Type, err := abi.NewType("uint8", "", nil)
	if err != nil {
		panic(err)
	}
	b32Type, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		panic(err)
	}
	commitArgs = abi.Arguments{
		{Type: addrType},
		{Type: u64Type},
		{Type: u8Type},
		{Type: b32Type},
	}
}

// EncodeCommitment computes the commitment digest for a wolf's night target.
// Deterministic and pure: identical inputs always produce the identical hash.
func EncodeCommitment(game common.Address, day uint64, targetSeat uint8, salt [32]byte) common.Hash {
	packed, err := commitArgs.Pack(game, day, targetSeat, salt)
	if err != nil {
		// The argument set is fixed and all four Go types match the ABI
		// types, so Pack cannot fail at runtime.
		panic(fmt.Sprintf("commitment pack: %v", err))
	}
	return crypto.Keccak256Hash(packed)
}

// IsValidSalt reports whether s is a 0x-prefixed 32-byte hex string.
func IsValidSalt(s string) bool {
	if len(s) != 66 || !strings.HasPrefix(s, "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// ParseSalt converts a valid salt string into its byte form.
func ParseSalt(s string) ([32]byte, error) {
	var salt [32]byte
	if !IsValidSalt(s) {
		return salt, fmt.Errorf("salt must be a 0x-prefixed 32-byte hex string, got %q", s)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return salt, err
	}
	copy(salt[:], b)
	return salt, nil
}

// SaltToHex renders a salt in the canonical 0x form used for storage.
func SaltToHex(salt [32]byte) string {
	return "0x" + hex.EncodeToString(salt[:])
}

// RandomSalt draws a fresh 32-byte salt from crypto/rand.
func RandomSalt() ([32]byte, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
