// Command transcribe-mock is a stand-in transcription service for local
// development. It accepts audio chunks on the /transcribe socket and
// answers each one with a running summary of what it has received.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nhooyr.io/websocket"

	"github.com/rishpaul04/Resonance/internal/audio"
	"github.com/rishpaul04/Resonance/internal/transcription"
)

// ebmlMagic starts every WebM chunk
var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time per chunk")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()
	mux.Handle(transcription.DefaultPath, &transcriber{logger: logger, delay: *delay})

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Info("Mock transcription server starting",
			slog.String("address", *addr),
			slog.String("path", transcription.DefaultPath),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

type transcriber struct {
	logger *slog.Logger
	delay  time.Duration
}

func (t *transcriber) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		t.logger.Warn("Upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	logger := t.logger.With(slog.String("remote", r.RemoteAddr))
	logger.Info("Client connected")

	var chunks int
	var bytesIn int
	var heard time.Duration

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Info("Client disconnected", slog.Int("chunks", chunks))
			} else {
				logger.Warn("Read failed", slog.String("error", err.Error()))
			}
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}

		chunks++
		bytesIn += len(data)
		format := describe(data, &heard)

		logger.Info("Chunk received",
			slog.Int("seq", chunks),
			slog.Int("bytes", len(data)),
			slog.String("format", format),
		)

		if t.delay > 0 {
			time.Sleep(t.delay)
		}

		text := fmt.Sprintf("Received %d chunks (%d bytes", chunks, bytesIn)
		if heard > 0 {
			text += fmt.Sprintf(", %.1fs of PCM", heard.Seconds())
		}
		text += ")"

		if err := conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
			logger.Warn("Write failed", slog.String("error", err.Error()))
			return
		}
	}
}

// describe names the chunk format and adds the duration of WAV chunks to heard
func describe(data []byte, heard *time.Duration) string {
	switch {
	case bytes.HasPrefix(data, ebmlMagic):
		return audio.FormatWebM
	case bytes.HasPrefix(data, []byte("RIFF")):
		samples, rate, err := audio.DecodeWAV(data)
		if err != nil || rate <= 0 {
			return "invalid wav"
		}
		*heard += time.Duration(len(samples)) * time.Second / time.Duration(rate)
		return audio.FormatWAV
	default:
		return "unknown"
	}
}
