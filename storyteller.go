package main

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const narratorSystemPrompt = `You are a dramatic storyteller for a medieval werewolf game played on a blockchain. When something happens in the village, you tell a short atmospheric story about it. Keep it to 2-3 sentences. Be gothic and dramatic, fitting for a village plagued by werewolves.`

// Storyteller generates a dramatic story from the game history so far.
// onChunk is called with each text chunk as it streams in.
type Storyteller interface {
	Tell(ctx context.Context, history []string, onChunk func(string)) (string, error)
}

type llmStoryteller struct {
	llm          llms.Model
	systemPrompt string
	callOpts     []llms.CallOption
}

func (s *llmStoryteller) Tell(ctx context.Context, history []string, onChunk func(string)) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, s.systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman,
			"Game history so far:\n"+strings.Join(history, "\n")+
				"\n\nTell a short dramatic story (2-3 sentences) about the most recent entry."),
	}

	var fullText strings.Builder
	opts := append(s.callOpts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		text := string(chunk)
		fullText.WriteString(text)
		if onChunk != nil {
			onChunk(text)
		}
		return nil
	}))

	_, err := s.llm.GenerateContent(ctx, messages, opts...)
	return strings.TrimSpace(fullText.String()), err
}

// buildCallOpts builds LLM call options from the config.
func buildCallOpts(cfg AppConfig) []llms.CallOption {
	var opts []llms.CallOption

	if cfg.NarratorTemperature != "" {
		if f, err := strconv.ParseFloat(cfg.NarratorTemperature, 64); err == nil {
			opts = append(opts, llms.WithTemperature(f))
			log.Printf("Narrator: temperature=%.2f", f)
		} else {
			log.Printf("Narrator: invalid temperature %q: %v", cfg.NarratorTemperature, err)
		}
	}

	return opts
}

// Narrator turns decoded contract events into streamed flavor text on the
// hub. Nil teller means the feature is disabled.
type Narrator struct {
	teller Storyteller
	hub    *Hub

	mu      sync.Mutex
	history []string
}

// newStorytellerFromConfig builds the configured LLM backend, or nil when
// the narrator is not configured.
func newStorytellerFromConfig(cfg AppConfig) Storyteller {
	provider := cfg.NarratorProvider
	model := cfg.NarratorModel
	callOpts := buildCallOpts(cfg)

	mk := func(llm llms.Model) Storyteller {
		return &llmStoryteller{llm: llm, systemPrompt: narratorSystemPrompt, callOpts: callOpts}
	}

	switch provider {
	case "ollama":
		llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(cfg.NarratorOllamaURL))
		if err != nil {
			log.Printf("Narrator: failed to init Ollama (%s at %s): %v", model, cfg.NarratorOllamaURL, err)
			return nil
		}
		log.Printf("Narrator: Ollama model=%s url=%s", model, cfg.NarratorOllamaURL)
		return mk(llm)
	case "openai":
		llm, err := openai.New(openai.WithModel(model))
		if err != nil {
			log.Printf("Narrator: failed to init OpenAI (%s): %v", model, err)
			return nil
		}
		log.Printf("Narrator: OpenAI model=%s", model)
		return mk(llm)
	case "claude":
		llm, err := anthropic.New(anthropic.WithModel(model))
		if err != nil {
			log.Printf("Narrator: failed to init Claude (%s): %v", model, err)
			return nil
		}
		log.Printf("Narrator: Claude model=%s", model)
		return mk(llm)
	case "gemini":
		llm, err := googleai.New(context.Background(), googleai.WithDefaultModel(model))
		if err != nil {
			log.Printf("Narrator: failed to init Gemini (%s): %v", model, err)
			return nil
		}
		log.Printf("Narrator: Gemini model=%s", model)
		return mk(llm)
	case "groq":
		llm, err := openai.New(
			openai.WithModel(model),
			openai.WithBaseURL("https://api.groq.com/openai/v1"),
			openai.WithToken(cfg.GroqAPIKey),
		)
		if err != nil {
			log.Printf("Narrator: failed to init Groq (%s): %v", model, err)
			return nil
		}
		log.Printf("Narrator: Groq model=%s", model)
		return mk(llm)
	case "openai-compatible":
		if cfg.NarratorURL == "" {
			log.Printf("Narrator: narrator_url is required for openai-compatible provider")
			return nil
		}
		opts := []openai.Option{
			openai.WithModel(model),
			openai.WithBaseURL(cfg.NarratorURL),
		}
		if cfg.NarratorAPIKey != "" {
			opts = append(opts, openai.WithToken(cfg.NarratorAPIKey))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			log.Printf("Narrator: failed to init openai-compatible (%s at %s): %v", model, cfg.NarratorURL, err)
			return nil
		}
		log.Printf("Narrator: openai-compatible model=%s url=%s", model, cfg.NarratorURL)
		return mk(llm)
	case "":
		log.Printf("Narrator: disabled (set narrator_provider to enable)")
		return nil
	default:
		log.Printf("Narrator: unknown provider %q", provider)
		return nil
	}
}

func NewNarrator(cfg AppConfig, hub *Hub) *Narrator {
	return &Narrator{teller: newStorytellerFromConfig(cfg), hub: hub}
}

// describe renders an event as a history line. Seer checks are private and
// produce nothing.
func describe(ev GameEvent) string {
	switch ev.Kind {
	case EventPlayerJoined:
		return fmt.Sprintf("A newcomer took seat #%d in the village.", ev.Seat)
	case EventNightResolved:
		if ev.Seat == NoVictim {
			return "The night passed and nobody died."
		}
		return fmt.Sprintf("The wolves fell upon seat #%d in the night.", ev.Seat)
	case EventWitchActed:
		switch ev.ActionType {
		case WitchSave:
			return "The witch spent her antidote; tonight's victim breathes again."
		case WitchPoison:
			return fmt.Sprintf("The witch slipped poison to seat #%d.", ev.Seat)
		default:
			return "The witch watched and did nothing."
		}
	}
	return ""
}

// ObserveEvent asynchronously streams a story for notable events. Returns
// immediately; story chunks appear progressively on the hub.
func (n *Narrator) ObserveEvent(ev GameEvent) {
	line := describe(ev)
	if line == "" {
		return
	}

	n.mu.Lock()
	n.history = append(n.history, line)
	history := append([]string(nil), n.history...)
	n.mu.Unlock()

	if n.teller == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Buffer for streamed tokens, pushed to clients every 300ms
		var mu sync.Mutex
		var buf strings.Builder

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(300 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					text := strings.TrimSpace(buf.String())
					mu.Unlock()
					if text != "" {
						n.hub.SendStory(text)
					}
				case <-done:
					return
				}
			}
		}()

		_, err := n.teller.Tell(ctx, history, func(chunk string) {
			mu.Lock()
			buf.WriteString(chunk)
			mu.Unlock()
		})
		close(done)

		if err != nil {
			log.Printf("Narrator: storyteller error: %v", err)
			return
		}

		mu.Lock()
		finalText := strings.TrimSpace(buf.String())
		mu.Unlock()
		if finalText != "" {
			n.hub.SendStory(finalText)
		}
	}()
}
