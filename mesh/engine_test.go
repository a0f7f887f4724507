package mesh

import (
	"context"
	"testing"
	"time"

	"github.com/Kkordik/vuelink-mesh/internal/adapter"
	"github.com/Kkordik/vuelink-mesh/internal/history"
	"github.com/Kkordik/vuelink-mesh/internal/model"
	"github.com/Kkordik/vuelink-mesh/internal/snapshot"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AdvertiseDwell = 20 * time.Millisecond
	cfg.InterChunkGap = 5 * time.Millisecond
	cfg.FragmentTimeout = 200 * time.Millisecond
	cfg.ReassemblyGCTick = 50 * time.Millisecond
	return cfg
}

func TestEngine_AdvertiseAndReceive(t *testing.T) {
	medium := adapter.NewMedium()
	nodeA := adapter.NewLoopbackAdapter(medium, "node-a", -40)
	nodeB := adapter.NewLoopbackAdapter(medium, "node-b", -40)

	engineA := New(nodeA, history.NewMemoryKVStore(), testConfig())
	engineB := New(nodeB, history.NewMemoryKVStore(), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engineA.Start(ctx); err != nil {
		t.Fatalf("engineA.Start: %v", err)
	}
	if err := engineB.Start(ctx); err != nil {
		t.Fatalf("engineB.Start: %v", err)
	}
	defer engineA.Stop()
	defer engineB.Stop()

	if _, err := engineB.ScanStart(); err != nil {
		t.Fatalf("ScanStart: %v", err)
	}

	ch, unsub := engineB.Subscribe()
	defer unsub()

	ok, err := engineA.Advertise(model.Message{Type: model.MessageGeneralText, Text: "hi there"}, 0, nil)
	if err != nil {
		t.Fatalf("Advertise: %v", err)
	}
	if !ok {
		t.Fatalf("expected advertise to complete")
	}

	select {
	case rm := <-ch:
		if rm.Message.Text != "hi there" {
			t.Fatalf("unexpected message: %+v", rm)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected engineB to receive the advertised message")
	}

	list := engineB.HistoryList()
	if len(list) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(list))
	}
}

func TestEngine_ForwardingToggle(t *testing.T) {
	medium := adapter.NewMedium()
	node := adapter.NewLoopbackAdapter(medium, "node", -40)
	engine := New(node, history.NewMemoryKVStore(), testConfig())

	if !engine.ForwardingEnabled() {
		t.Fatalf("expected forwarding enabled by default")
	}
	engine.SetForwardingEnabled(false)
	if engine.ForwardingEnabled() {
		t.Fatalf("expected forwarding disabled after SetForwardingEnabled(false)")
	}
}

func TestEngine_ImportSharedSnapshot(t *testing.T) {
	medium := adapter.NewMedium()
	node := adapter.NewLoopbackAdapter(medium, "node", -40)
	engine := New(node, history.NewMemoryKVStore(), testConfig())

	msgs := []model.Message{
		{Type: model.MessageGeneralText, Text: "shared one"},
		{Type: model.MessageGeneralText, Text: "shared two"},
	}
	raw, err := snapshot.Encode(msgs)
	if err != nil {
		t.Fatalf("snapshot.Encode: %v", err)
	}

	count, err := engine.ImportSharedSnapshot(raw)
	if err != nil {
		t.Fatalf("ImportSharedSnapshot: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 imported messages, got %d", count)
	}

	count2, err := engine.ImportSharedSnapshot(raw)
	if err != nil {
		t.Fatalf("ImportSharedSnapshot (repeat): %v", err)
	}
	if count2 != 0 {
		t.Fatalf("expected duplicate import to add 0 entries, got %d", count2)
	}

	if len(engine.HistoryList()) != 2 {
		t.Fatalf("expected 2 history entries after import, got %d", len(engine.HistoryList()))
	}
}

func TestEngine_CancelAdvertise(t *testing.T) {
	medium := adapter.NewMedium()
	node := adapter.NewLoopbackAdapter(medium, "node", -40)
	cfg := testConfig()
	cfg.AdvertiseDwell = 500 * time.Millisecond
	engine := New(node, history.NewMemoryKVStore(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer engine.Stop()

	longText := ""
	for i := 0; i < 60; i++ {
		longText += "q"
	}

	resultCh := make(chan bool, 1)
	go func() {
		ok, _ := engine.Advertise(model.Message{Type: model.MessageGeneralText, Text: longText}, 0, nil)
		resultCh <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	if !engine.CancelAdvertise() {
		t.Fatalf("expected CancelAdvertise to report an active sequence")
	}

	select {
	case ok := <-resultCh:
		if ok {
			t.Fatalf("expected cancelled advertise to report incomplete")
		}
	case <-time.After(time.Second):
		t.Fatalf("Advertise did not return after cancel")
	}
}
