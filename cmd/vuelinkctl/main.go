// Command vuelinkctl is a line-driven demo client exercising a single
// Vuelink Engine's Host UI surface (spec.md §6) the way a real host
// app would: composing and sending messages, listing/clearing
// history, and importing a shared snapshot — all from stdin, since
// this module doesn't include a UI layer (spec.md §1).
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kkordik/vuelink-mesh/internal/adapter"
	"github.com/Kkordik/vuelink-mesh/internal/history"
	"github.com/Kkordik/vuelink-mesh/internal/model"
	"github.com/Kkordik/vuelink-mesh/internal/snapshot"
	"github.com/Kkordik/vuelink-mesh/mesh"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level: debug/info/warn/error")
	historyDir := flag.String("history-dir", "", "Directory to persist history JSON (empty = in-memory only)")
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

	store := history.KVStore(history.NewMemoryKVStore())
	if *historyDir != "" {
		s, err := history.NewFileKVStore(*historyDir)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open history store")
		}
		store = s
	}

	medium := adapter.NewMedium()
	a := adapter.NewLoopbackAdapter(medium, "vuelinkctl", -50)
	engine := mesh.New(a, store, mesh.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := engine.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start engine")
	}
	defer engine.Stop()

	fmt.Println("vuelinkctl ready. Commands: send <text> | priority <low|medium|high|urgent> | history | clear | import <base64> | quit")
	scanner := bufio.NewScanner(os.Stdin)
	priority := model.PriorityLow

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		cmd := fields[0]
		var arg string
		if len(fields) > 1 {
			arg = fields[1]
		}

		switch cmd {
		case "quit", "exit":
			return

		case "priority":
			priority = model.PriorityFromString(arg)
			fmt.Printf("priority set to %s\n", priority.String())

		case "send":
			if arg == "" {
				fmt.Println("usage: send <text>")
				continue
			}
			msg := model.Message{Type: model.MessageGeneralText, Text: arg, Priority: priority}
			ok, err := engine.Advertise(msg, 250*time.Millisecond, nil)
			if err != nil {
				fmt.Printf("send failed: %v\n", err)
				continue
			}
			fmt.Printf("send complete: %v\n", ok)

		case "history":
			for _, sm := range engine.HistoryList() {
				fmt.Printf("[%s] %s %s %q\n", sm.ReceivedAt.Format(time.RFC3339), sm.Type.String(), sm.Priority.String(), sm.Text)
			}

		case "clear":
			if err := engine.HistoryClear(); err != nil {
				fmt.Printf("clear failed: %v\n", err)
				continue
			}
			fmt.Println("history cleared")

		case "import":
			raw, err := base64.RawURLEncoding.DecodeString(arg)
			if err != nil {
				raw, err = base64.StdEncoding.DecodeString(arg)
			}
			if err != nil {
				fmt.Printf("import failed: invalid base64: %v\n", err)
				continue
			}
			count, err := engine.ImportSharedSnapshot(raw)
			if err != nil {
				fmt.Printf("import failed: %v\n", err)
				continue
			}
			fmt.Printf("imported %d new message(s)\n", count)

		case "export":
			link, err := snapshot.EncodeLink(toMessages(engine.HistoryList()))
			if err != nil {
				fmt.Printf("export failed: %v\n", err)
				continue
			}
			fmt.Println(link)

		default:
			fmt.Printf("unknown command: %s\n", cmd)
		}
	}
}

func toMessages(stored []model.StoredMessage) []model.Message {
	out := make([]model.Message, len(stored))
	for i, sm := range stored {
		out[i] = sm.Message
	}
	return out
}
