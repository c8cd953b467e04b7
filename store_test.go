package main

import (
	"path/filepath"
	"testing"
)

const (
	testGame     = "0x00000000000000000000000000000000000000AA"
	testAccountA = "0x00000000000000000000000000000000000000A1"
	testAccountB = "0x00000000000000000000000000000000000000B2"
)

func setupTestStore(t *testing.T) *SecretStore {
	t.Helper()
	store, err := OpenSecretStore(filepath.Join(t.TempDir(), "secrets.db"))
	if err != nil {
		t.Fatalf("OpenSecretStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCommitmentRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	salt := SaltToHex(testSalt(0x11))

	if err := store.SaveCommitment(testGame, testAccountA, 1, 3, salt); err != nil {
		t.Fatalf("SaveCommitment: %v", err)
	}

	got, ok, err := store.LoadCommitment(testGame, testAccountA, 1)
	if err != nil {
		t.Fatalf("LoadCommitment: %v", err)
	}
	if !ok {
		t.Fatal("commitment not found after save")
	}
	if got.TargetSeat != 3 || got.Salt != salt {
		t.Fatalf("got (%d, %s), want (3, %s)", got.TargetSeat, got.Salt, salt)
	}
}

func TestCommitmentMissingIsNotAnError(t *testing.T) {
	store := setupTestStore(t)

	_, ok, err := store.LoadCommitment(testGame, testAccountA, 1)
	if err != nil {
		t.Fatalf("LoadCommitment on empty store: %v", err)
	}
	if ok {
		t.Fatal("found a commitment that was never saved")
	}
}

func TestCommitmentOverwriteSameDay(t *testing.T) {
	store := setupTestStore(t)

	if err := store.SaveCommitment(testGame, testAccountA, 1, 2, SaltToHex(testSalt(0x01))); err != nil {
		t.Fatalf("SaveCommitment: %v", err)
	}
	second := SaltToHex(testSalt(0x02))
	if err := store.SaveCommitment(testGame, testAccountA, 1, 5, second); err != nil {
		t.Fatalf("SaveCommitment overwrite: %v", err)
	}

	got, ok, _ := store.LoadCommitment(testGame, testAccountA, 1)
	if !ok || got.TargetSeat != 5 || got.Salt != second {
		t.Fatalf("overwrite did not win: got %+v", got)
	}
}

func TestCommitmentIsolatedByAccount(t *testing.T) {
	store := setupTestStore(t)

	if err := store.SaveCommitment(testGame, testAccountA, 1, 3, SaltToHex(testSalt(0x0a))); err != nil {
		t.Fatalf("SaveCommitment: %v", err)
	}

	// A different account on the same game and day must see nothing.
	_, ok, err := store.LoadCommitment(testGame, testAccountB, 1)
	if err != nil {
		t.Fatalf("LoadCommitment: %v", err)
	}
	if ok {
		t.Fatal("account B can read account A's commitment")
	}
}

func TestCommitmentIsolatedByDay(t *testing.T) {
	store := setupTestStore(t)

	if err := store.SaveCommitment(testGame, testAccountA, 1, 3, SaltToHex(testSalt(0x0a))); err != nil {
		t.Fatalf("SaveCommitment: %v", err)
	}

	_, ok, err := store.LoadCommitment(testGame, testAccountA, 2)
	if err != nil {
		t.Fatalf("LoadCommitment: %v", err)
	}
	if ok {
		t.Fatal("day 2 lookup returned day 1's commitment")
	}
}

func TestCommitmentKeysAreCaseInsensitive(t *testing.T) {
	store := setupTestStore(t)

	if err := store.SaveCommitment(testGame, testAccountA, 1, 3, SaltToHex(testSalt(0x0a))); err != nil {
		t.Fatalf("SaveCommitment: %v", err)
	}

	// Load with a lowercased spelling of the same addresses.
	_, ok, err := store.LoadCommitment(
		"0x00000000000000000000000000000000000000aa",
		"0x00000000000000000000000000000000000000a1", 1)
	if err != nil {
		t.Fatalf("LoadCommitment: %v", err)
	}
	if !ok {
		t.Fatal("lowercased key did not match checksummed key")
	}
}

func TestSaveCommitmentRejectsMalformedSalt(t *testing.T) {
	store := setupTestStore(t)

	if err := store.SaveCommitment(testGame, testAccountA, 1, 3, "0xdeadbeef"); err == nil {
		t.Fatal("expected error for malformed salt")
	}
}

func TestSeerResultRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	if err := store.SaveSeerResult(testGame, testAccountA, 2, 4, FactionWolves); err != nil {
		t.Fatalf("SaveSeerResult: %v", err)
	}

	got, ok, err := store.LoadSeerResult(testGame, testAccountA, 2)
	if err != nil {
		t.Fatalf("LoadSeerResult: %v", err)
	}
	if !ok {
		t.Fatal("seer result not found after save")
	}
	if got.Seat != 4 || got.Faction != FactionWolves {
		t.Fatalf("got %+v, want seat 4, faction wolves", got)
	}

	// Another day stays empty.
	if _, ok, _ := store.LoadSeerResult(testGame, testAccountA, 3); ok {
		t.Fatal("day 3 lookup returned day 2's result")
	}
}

func TestLastGamePerRole(t *testing.T) {
	store := setupTestStore(t)

	if err := store.SaveLastGame("player", testAccountA, testGame); err != nil {
		t.Fatalf("SaveLastGame: %v", err)
	}
	otherGame := "0x00000000000000000000000000000000000000bb"
	if err := store.SaveLastGame("host", testAccountA, otherGame); err != nil {
		t.Fatalf("SaveLastGame host: %v", err)
	}

	game, ok, err := store.LoadLastGame("player", testAccountA)
	if err != nil || !ok {
		t.Fatalf("LoadLastGame player: ok=%v err=%v", ok, err)
	}
	if game != normKey(testGame) {
		t.Fatalf("player last game = %q, want %q", game, normKey(testGame))
	}

	game, ok, err = store.LoadLastGame("host", testAccountA)
	if err != nil || !ok {
		t.Fatalf("LoadLastGame host: ok=%v err=%v", ok, err)
	}
	if game != otherGame {
		t.Fatalf("host last game = %q, want %q", game, otherGame)
	}

	if _, ok, _ := store.LoadLastGame("player", testAccountB); ok {
		t.Fatal("account B has a last game it never saved")
	}
}
