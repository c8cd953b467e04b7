package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestDescribe(t *testing.T) {
	cases := []struct {
		name string
		ev   GameEvent
		want string // substring; empty means no line at all
	}{
		{"joined", GameEvent{Kind: EventPlayerJoined, Seat: 2}, "seat #2"},
		{"killed", GameEvent{Kind: EventNightResolved, Seat: 4}, "seat #4"},
		{"quiet night", GameEvent{Kind: EventNightResolved, Seat: NoVictim}, "nobody died"},
		{"save", GameEvent{Kind: EventWitchActed, ActionType: WitchSave}, "antidote"},
		{"poison", GameEvent{Kind: EventWitchActed, ActionType: WitchPoison, Seat: 1}, "poison"},
		{"skip", GameEvent{Kind: EventWitchActed, ActionType: WitchSkip}, "nothing"},
		{"seer is private", GameEvent{Kind: EventSeerChecked, Player: common.Address{}, Seat: 1}, ""},
	}
	for _, c := range cases {
		got := describe(c.ev)
		if c.want == "" {
			if got != "" {
				t.Errorf("%s: produced %q, want silence", c.name, got)
			}
			continue
		}
		if !strings.Contains(got, c.want) {
			t.Errorf("%s: %q does not mention %q", c.name, got, c.want)
		}
	}
}

type fakeTeller struct {
	story string
}

func (f *fakeTeller) Tell(ctx context.Context, history []string, onChunk func(string)) (string, error) {
	for _, word := range strings.Fields(f.story) {
		onChunk(word + " ")
	}
	return f.story, nil
}

func TestNarratorStreamsStoryToHub(t *testing.T) {
	hub := newHub()
	n := &Narrator{teller: &fakeTeller{story: "The village slept uneasily."}, hub: hub}

	n.ObserveEvent(GameEvent{Kind: EventNightResolved, Seat: 3})

	select {
	case payload := <-hub.broadcast:
		var env wsEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if env.Type != "story" {
			t.Fatalf("frame type %q, want story", env.Type)
		}
		if !strings.Contains(env.Story, "village") {
			t.Fatalf("story %q", env.Story)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no story frame arrived")
	}
}

func TestNarratorWithoutTellerStillKeepsHistory(t *testing.T) {
	n := &Narrator{hub: newHub()}

	n.ObserveEvent(GameEvent{Kind: EventPlayerJoined, Seat: 0})
	n.ObserveEvent(GameEvent{Kind: EventSeerChecked, Seat: 1}) // privacy: no line

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.history) != 1 {
		t.Fatalf("history has %d lines, want 1", len(n.history))
	}
}
