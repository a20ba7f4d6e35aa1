// Command audioclient streams a PCM WAV file into a live session over
// WebSocket and prints the transcript as it arrives.
package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"speech-relay-service/internal/api/ws"
	"speech-relay-service/internal/observability/logging"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// Audio is sent in 100ms chunks to simulate real-time streaming.
const chunkInterval = 100 * time.Millisecond

var errNotWAV = errors.New("not a valid WAV file")

type wavFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// chunkSize returns the bytes of audio in one chunk interval.
func (f wavFormat) chunkSize() int {
	bytesPerSecond := int(f.SampleRate) * int(f.Channels) * int(f.BitsPerSample) / 8
	n := bytesPerSecond * int(chunkInterval/time.Millisecond) / 1000
	if n <= 0 {
		return 1600
	}
	return n
}

func readWAVHeader(r io.Reader) (wavFormat, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return wavFormat{}, fmt.Errorf("read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return wavFormat{}, errNotWAV
	}

	f := wavFormat{
		AudioFormat:   binary.LittleEndian.Uint16(header[20:22]),
		Channels:      binary.LittleEndian.Uint16(header[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(header[24:28]),
		BitsPerSample: binary.LittleEndian.Uint16(header[34:36]),
	}
	if f.AudioFormat != 1 { // PCM
		return f, fmt.Errorf("only PCM format supported, got format %d", f.AudioFormat)
	}
	return f, nil
}

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16-bit PCM)")
	serverURL := flag.String("server", "ws://localhost:8080/api/session", "Session WebSocket URL")
	language := flag.String("language", "en-US", "Recognition language")
	sendAfter := flag.Bool("send", false, "Relay the transcript after streaming")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console", Output: os.Stderr})

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audio file")
	}
	defer f.Close()

	format, err := readWAVHeader(f)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid audio file")
	}
	log.Info().
		Uint16("channels", format.Channels).
		Uint32("sampleRate", format.SampleRate).
		Uint16("bitsPerSample", format.BitsPerSample).
		Msg("WAV file")

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatal().Err(err).Str("server", *serverURL).Msg("Failed to connect")
	}
	defer conn.Close()
	log.Info().Str("server", *serverURL).Msg("Connected")

	idle := make(chan struct{}, 1)
	answered := make(chan struct{})
	go readMessages(conn, idle, answered)

	if err := conn.WriteJSON(ws.Command{Type: ws.CmdStart, Language: *language}); err != nil {
		log.Fatal().Err(err).Msg("Failed to start session")
	}

	chunk := make([]byte, format.chunkSize())
	var (
		totalBytes int64
		chunkNum   int
	)
	startTime := time.Now()

	for {
		n, err := f.Read(chunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read audio")
		}

		chunkNum++
		totalBytes += int64(n)
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk[:n]); err != nil {
			log.Fatal().Err(err).Msg("Failed to send audio")
		}
		if chunkNum%10 == 0 {
			log.Debug().Int("chunk", chunkNum).Int64("bytes", totalBytes).Msg("Sent audio")
		}

		time.Sleep(chunkInterval)
	}

	log.Info().
		Int("chunks", chunkNum).
		Int64("bytes", totalBytes).
		Dur("elapsed", time.Since(startTime)).
		Msg("Finished streaming, waiting for final transcripts")

	drainIdle(idle)
	if err := conn.WriteJSON(ws.Command{Type: ws.CmdStop}); err != nil {
		log.Fatal().Err(err).Msg("Failed to stop session")
	}
	waitOrTimeout(idle, 10*time.Second)

	if *sendAfter {
		if err := conn.WriteJSON(ws.Command{Type: ws.CmdSend}); err != nil {
			log.Fatal().Err(err).Msg("Failed to send transcript")
		}
		waitOrTimeout(answered, 60*time.Second)
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func readMessages(conn *websocket.Conn, idle chan<- struct{}, answered chan<- struct{}) {
	var (
		last string
		once sync.Once
	)
	answer := func() { once.Do(func() { close(answered) }) }

	for {
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case ws.MsgTranscript:
			if msg.Transcript != nil {
				line := msg.Transcript.Finalized + msg.Transcript.Interim
				if line != last {
					fmt.Printf("\r%s", line)
					last = line
				}
			}
			if msg.State == "IDLE" {
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		case ws.MsgAnswer:
			fmt.Printf("\n\nAnswer: %s\n", msg.Answer)
			answer()
		case ws.MsgError:
			log.Warn().Str("code", msg.Code).Msg(msg.Error)
			if msg.Code == ws.CodeNothingToSend || msg.Code == ws.CodeCapabilityUnavailable {
				answer()
			}
		}
	}
}

func drainIdle(idle <-chan struct{}) {
	select {
	case <-idle:
	default:
	}
}

func waitOrTimeout(ch <-chan struct{}, d time.Duration) {
	select {
	case <-ch:
	case <-time.After(d):
		log.Warn().Dur("timeout", d).Msg("Timed out waiting for server")
	}
}
