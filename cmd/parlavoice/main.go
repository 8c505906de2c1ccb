package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tallevi/parla/internal/audio"
	"github.com/tallevi/parla/internal/broker"
	"github.com/tallevi/parla/internal/config"
	"github.com/tallevi/parla/internal/conversation"
	"github.com/tallevi/parla/internal/diag"
	"github.com/tallevi/parla/internal/observability"
	"github.com/tallevi/parla/internal/session"
	"github.com/tallevi/parla/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace + "_client")
	diagLog := diag.NewLogger()

	conv := conversation.NewLog()
	conv.SetListener(func(_ int, turn conversation.Turn) {
		// Assistant turns stream in as deltas; print once finalized.
		if turn.Role == conversation.RoleAssistant && !turn.Final {
			return
		}
		fmt.Printf("[%s] %s\n", turn.Role, turn.Text)
	})

	negotiator, err := buildNegotiator(cfg)
	if err != nil {
		log.Fatalf("transport init failed: %v", err)
	}

	instructions := session.BuildInstructions(
		cfg.AssistantRole,
		cfg.AssistantPersonality,
		cfg.AssistantWordLimit,
		cfg.AssistantLanguage,
	)

	controller := session.NewController(session.Config{
		Broker:       broker.NewClient(cfg.BrokerURL),
		Negotiator:   negotiator,
		Voice:        cfg.Voice,
		Instructions: instructions,
		Conversation: conv,
		Diag:         diagLog,
		Metrics:      metrics,
		OnState: func(_ session.ConnectionState, text string) {
			fmt.Printf("-- %s\n", text)
		},
	})

	ctx := context.Background()
	if err := controller.Start(ctx); err != nil {
		log.Fatalf("session start failed: %v", err)
	}
	log.Printf("session started (transport %s, voice %s)", cfg.Transport, cfg.Voice)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	controller.Stop()
	log.Printf("goodbye")
}

func buildNegotiator(cfg config.Config) (transport.Negotiator, error) {
	openSource := func(sampleRate int) (transport.AudioSource, error) {
		return audio.NewMicrophoneSource(sampleRate)
	}

	// WebRTC plays back G.711 narrowband; the websocket transport carries
	// 24kHz PCM in-band.
	buildSink := func(sampleRate int) (transport.AudioSink, error) {
		speaker, err := audio.NewSpeakerSink(sampleRate)
		if err != nil {
			return nil, err
		}
		if cfg.RecordPath != "" {
			return audio.NewRecordingSink(speaker, cfg.RecordPath, sampleRate), nil
		}
		return speaker, nil
	}

	switch cfg.Transport {
	case config.TransportWebRTC:
		sink, err := buildSink(8000)
		if err != nil {
			return nil, err
		}
		return transport.NewWebRTCNegotiator(transport.WebRTCConfig{
			Region:     cfg.AzureRegion,
			Deployment: cfg.AzureDeployment,
			OpenSource: openSource,
			Sink:       sink,
		}), nil
	case config.TransportWebSocket:
		wsURL, err := realtimeWSURL(cfg)
		if err != nil {
			return nil, err
		}
		sink, err := buildSink(24000)
		if err != nil {
			return nil, err
		}
		return transport.NewWebSocketNegotiator(transport.WebSocketConfig{
			URL:        wsURL,
			OpenSource: openSource,
			Sink:       sink,
		}), nil
	case config.TransportMock:
		return mockNegotiator(), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

// realtimeWSURL derives the websocket endpoint from the Azure resource URL.
func realtimeWSURL(cfg config.Config) (string, error) {
	if cfg.AzureEndpoint == "" {
		return "", fmt.Errorf("AZURE_OPENAI_ENDPOINT is required for the websocket transport")
	}
	u, err := url.Parse(cfg.AzureEndpoint)
	if err != nil {
		return "", fmt.Errorf("AZURE_OPENAI_ENDPOINT parse error: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/openai/realtime"
	q := u.Query()
	q.Set("api-version", cfg.AzureAPIVersion)
	q.Set("deployment", cfg.AzureDeployment)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// mockNegotiator scripts a short canned exchange so the client can run
// without a realtime backend or audio devices.
func mockNegotiator() transport.Negotiator {
	h := transport.NewMockHandle()
	go func() {
		time.Sleep(200 * time.Millisecond)
		h.EmitRaw([]byte(`{"type":"session.created","session":{"id":"sess_mock","model":"mock"}}`))
		h.EmitRaw([]byte(`{"type":"response.created"}`))
		h.EmitRaw([]byte(`{"type":"response.audio_transcript.delta","delta":"Hello! "}`))
		h.EmitRaw([]byte(`{"type":"response.audio_transcript.delta","delta":"This is the mock transport."}`))
		h.EmitRaw([]byte(`{"type":"response.audio_transcript.done","transcript":"Hello! This is the mock transport."}`))
		h.EmitRaw([]byte(`{"type":"response.done"}`))
	}()
	return transport.NewMockNegotiator(h)
}
