package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/snapetech/tsmfdemux/internal/config"
	"github.com/snapetech/tsmfdemux/internal/metrics"
	"github.com/snapetech/tsmfdemux/internal/tsmf"
)

func tsPacket(pid uint16) []byte {
	pkt := make([]byte, 188)
	pkt[0] = 0x47
	pkt[1] = byte(pid >> 8)
	pkt[2] = byte(pid)
	pkt[3] = 0x10
	return pkt
}

func TestRunLoop_passThroughWritesToAllSinks(t *testing.T) {
	var input bytes.Buffer
	for i := 0; i < 5; i++ {
		input.Write(tsPacket(0x0100))
	}

	driver := tsmf.NewDriver()
	var sinkA, sinkB bytes.Buffer
	m := metrics.NewMetrics()

	err := runLoop(context.Background(), driver, &input, []io.Writer{&sinkA, &sinkB}, false, 64*1024, m)
	if err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if sinkA.Len() != 5*188 {
		t.Fatalf("sinkA.Len() = %d, want %d", sinkA.Len(), 5*188)
	}
	if !bytes.Equal(sinkA.Bytes(), sinkB.Bytes()) {
		t.Fatalf("sinks received different data")
	}
}

func TestApplyFlagOverrides_blankFlagsPreserveConfigDefaults(t *testing.T) {
	cfg := &config.Config{
		SourceAddr:   "-",
		SelectedONID: 0xFFFF,
		SelectedTSID: 0xFFFF,
	}
	applyFlagOverrides(cfg, "", "", "", "", "", false, true)
	if cfg.SourceAddr != "-" {
		t.Errorf("SourceAddr = %q, want unchanged", cfg.SourceAddr)
	}
	if cfg.SelectedONID != 0xFFFF || cfg.SelectedTSID != 0xFFFF {
		t.Errorf("selection overridden by blank flags: onid=0x%04X tsid=0x%04X", cfg.SelectedONID, cfg.SelectedTSID)
	}
}

func TestApplyFlagOverrides_parsesHexSelection(t *testing.T) {
	cfg := &config.Config{}
	applyFlagOverrides(cfg, "tcp://1.2.3.4:5", "127.0.0.1:9000", ":9100", "0x20", "0x0401", false, true)
	if cfg.SourceAddr != "tcp://1.2.3.4:5" {
		t.Errorf("SourceAddr = %q", cfg.SourceAddr)
	}
	if cfg.SelectedONID != 0x20 || cfg.SelectedTSID != 0x0401 {
		t.Errorf("onid=0x%04X tsid=0x%04X, want 0x20,0x0401", cfg.SelectedONID, cfg.SelectedTSID)
	}
}
