// Command vuelinkd runs a small in-process Vuelink mesh: two Engine
// nodes sharing a loopback BLE medium, logging every received,
// forwarded, and state-change event. There is no real radio hardware
// in this module (spec.md §1 keeps the platform BLE adapter out of
// scope); this demo substitutes the loopback adapter so the full
// Scanner/Reassembler/Dedup/Forwarder/Advertiser pipeline can be
// observed end to end.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kkordik/vuelink-mesh/internal/adapter"
	"github.com/Kkordik/vuelink-mesh/internal/history"
	"github.com/Kkordik/vuelink-mesh/mesh"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level: debug/info/warn/error")
	historyDir := flag.String("history-dir", "", "Directory to persist history JSON (empty = in-memory only)")
	dwellMillis := flag.Int("dwell-ms", 0, "Per-chunk advertise dwell in milliseconds (0 = spec default, ~3s)")
	nodeNames := flag.String("nodes", "alpha,bravo", "Comma-separated names of the simulated nodes sharing one medium")

	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch *logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		log.Fatal().Str("level", *logLevel).Msg("invalid log level")
	}

	names := splitNonEmpty(*nodeNames, ',')
	if len(names) < 1 {
		log.Fatal().Msg("--nodes must name at least one node")
	}

	cfg := mesh.DefaultConfig()
	if *dwellMillis > 0 {
		cfg.AdvertiseDwell = time.Duration(*dwellMillis) * time.Millisecond
	}

	medium := adapter.NewMedium()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engines := make([]*mesh.Engine, 0, len(names))
	for _, name := range names {
		store, err := historyStore(*historyDir, name)
		if err != nil {
			log.Fatal().Err(err).Str("node", name).Msg("failed to open history store")
		}

		a := adapter.NewLoopbackAdapter(medium, name, -50)
		e := mesh.New(a, store, cfg)
		if err := e.Start(ctx); err != nil {
			log.Fatal().Err(err).Str("node", name).Msg("failed to start engine")
		}
		if _, err := e.ScanStart(); err != nil {
			log.Fatal().Err(err).Str("node", name).Msg("failed to start scanning")
		}

		logReceivedMessages(name, e)
		engines = append(engines, e)
	}

	log.Info().Strs("nodes", names).Msg("vuelinkd: mesh running, waiting for signal")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("vuelinkd: shutting down")
	cancel()
	for i, e := range engines {
		if err := e.Stop(); err != nil {
			log.Warn().Err(err).Str("node", names[i]).Msg("error stopping engine")
		}
	}
}

func logReceivedMessages(node string, e *mesh.Engine) {
	ch, _ := e.Subscribe()
	go func() {
		for rm := range ch {
			log.Info().
				Str("node", node).
				Str("source", rm.Source).
				Int16("rssi", rm.RSSI).
				Str("type", rm.Message.Type.String()).
				Bool("willForward", rm.WillForward).
				Msg("vuelinkd: received message")
		}
	}()
}

func historyStore(dir, node string) (history.KVStore, error) {
	if dir == "" {
		return history.NewMemoryKVStore(), nil
	}
	return history.NewFileKVStore(dir + "/" + node)
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
