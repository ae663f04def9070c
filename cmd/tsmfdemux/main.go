// Command tsmfdemux reads an unframed byte stream from a tuner (or a file,
// or stdin), recovers TS packet framing and the ARIB TSMF multiplex-frame
// header, and writes out only the packets belonging to one selected
// sub-stream — to stdout and, optionally, fanned out to any number of TCP
// clients as well.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/snapetech/tsmfdemux/internal/broadcast"
	"github.com/snapetech/tsmfdemux/internal/config"
	"github.com/snapetech/tsmfdemux/internal/device"
	"github.com/snapetech/tsmfdemux/internal/health"
	"github.com/snapetech/tsmfdemux/internal/metrics"
	"github.com/snapetech/tsmfdemux/internal/tsmf"
)

func main() {
	envFile := flag.String("env-file", "", "optional KEY=value env file to load before reading other config")
	source := flag.String("source", "", "byte stream source: tcp://host:port, a file path, or - for stdin (default from TSMFDEMUX_SOURCE)")
	listen := flag.String("listen", "", "TCP address to fan out the filtered output on, in addition to stdout (default from TSMFDEMUX_LISTEN)")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on, empty disables (default from TSMFDEMUX_METRICS_ADDR)")
	onid := flag.String("onid", "", "original network id filter, 0xFFFF for any (default from TSMFDEMUX_ONID)")
	tsid := flag.String("tsid", "", "stream id filter, or relative index if -relative, 0xFFFF for pass-through (default from TSMFDEMUX_TSID)")
	relative := flag.Bool("relative", false, "treat tsid as a zero-based relative stream index rather than a real TSID")
	dropNulls := flag.Bool("drop-nulls", true, "suppress null-PID (0x1FFF) packets from the output")
	discover := flag.Bool("discover", false, "broadcast-discover a head-end instead of dialing -source directly")
	flag.Parse()

	if *envFile != "" {
		if err := config.LoadEnvFile(*envFile); err != nil {
			log.Fatalf("tsmfdemux: load env file: %v", err)
		}
	}
	cfg := config.Load()
	applyFlagOverrides(cfg, *source, *listen, *metricsAddr, *onid, *tsid, *relative, *dropNulls)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *discover {
		heads, err := device.Discover(ctx, device.DeviceIDWildcard)
		if err != nil {
			log.Fatalf("tsmfdemux: discover: %v", err)
		}
		if len(heads) == 0 {
			log.Fatalf("tsmfdemux: discover: no head-end responded")
		}
		cfg.SourceAddr = heads[0].SourceAddr
		log.Printf("tsmfdemux: discovered head-end %q at %s", heads[0].FriendlyName, cfg.SourceAddr)
	}

	if err := health.CheckSource(ctx, cfg.SourceAddr); err != nil {
		log.Fatalf("tsmfdemux: source check failed: %v", err)
	}

	reader, closer, err := openSource(ctx, cfg.SourceAddr)
	if err != nil {
		log.Fatalf("tsmfdemux: open source %q: %v", cfg.SourceAddr, err)
	}
	if closer != nil {
		defer closer.Close()
	}

	m := metrics.NewMetrics()
	if cfg.MetricsAddr != "" {
		go func() {
			log.Printf("tsmfdemux: metrics listening on %s", cfg.MetricsAddr)
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				log.Printf("tsmfdemux: metrics server: %v", err)
			}
		}()
	}

	var sinks []io.Writer
	sinks = append(sinks, os.Stdout)
	if cfg.ListenAddr != "" {
		hub, err := broadcast.NewHub(cfg.ListenAddr)
		if err != nil {
			log.Fatalf("tsmfdemux: listen %q: %v", cfg.ListenAddr, err)
		}
		defer hub.Close()
		log.Printf("tsmfdemux: fanning out filtered output on %s", cfg.ListenAddr)
		sinks = append(sinks, hub)
	}

	driver := tsmf.NewDriver()
	if cfg.SelectedONID != 0xFFFF || cfg.SelectedTSID != 0xFFFF {
		driver.SetStream(cfg.SelectedONID, cfg.SelectedTSID, cfg.Relative)
	}
	log.Printf("tsmfdemux: starting source=%q onid=0x%04X tsid=0x%04X relative=%t dropNulls=%t",
		cfg.SourceAddr, cfg.SelectedONID, cfg.SelectedTSID, cfg.Relative, cfg.DropNulls)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Printf("tsmfdemux: shutting down")
		cancel()
	}()

	go reportThroughput(ctx, driver)

	if err := runLoop(ctx, driver, reader, sinks, cfg.DropNulls, cfg.ReadChunkBytes, m); err != nil && ctx.Err() == nil {
		log.Fatalf("tsmfdemux: %v", err)
	}
}

// runLoop reads chunks from src, drives the parser, and writes emitted
// bytes to every sink, until ctx is cancelled or the source returns EOF.
func runLoop(ctx context.Context, driver *tsmf.Driver, src io.Reader, sinks []io.Writer, dropNulls bool, chunkBytes int, m *metrics.Metrics) error {
	buf := make([]byte, chunkBytes)
	var prev tsmf.Stats
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := src.Read(buf)
		if n > 0 {
			out := driver.Drive(buf[:n], dropNulls)
			prev = updateMetrics(m, driver.Stats(), prev)
			if len(out) > 0 {
				for _, sink := range sinks {
					if _, werr := sink.Write(out); werr != nil {
						log.Printf("tsmfdemux: sink write: %v", werr)
					}
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}

// updateMetrics pushes a Stats snapshot into the Prometheus collectors: the
// gauges are set directly, and the monotonic *Total counters are advanced
// by the delta against the previous snapshot, since prometheus.Counter only
// exposes Add/Inc, not Set. Returns the snapshot just pushed, for the next
// call's delta.
func updateMetrics(m *metrics.Metrics, st, prev tsmf.Stats) tsmf.Stats {
	m.PacketSize.Set(float64(st.PacketSize))
	m.SlotCounter.Set(float64(st.SlotCounter))
	m.BytesReadTotal.Add(float64(st.BytesRead - prev.BytesRead))
	m.SyncAcquiredTotal.Add(float64(st.SyncAcquired - prev.SyncAcquired))
	m.SyncLossTotal.Add(float64(st.SyncLost - prev.SyncLost))
	m.HeadersSeenTotal.Add(float64(st.HeadersSeen - prev.HeadersSeen))
	m.TLVFragmentsTotal.Add(float64(st.TLVFragments - prev.TLVFragments))
	m.PacketsEmittedTotal.WithLabelValues("accepted").Add(float64(st.PacketsEmitted - prev.PacketsEmitted))
	m.PacketsRejectedTotal.WithLabelValues("unmatched").Add(float64(st.PacketsRejected - prev.PacketsRejected))
	return st
}

// reportThroughput logs a periodic one-line summary of driver state, in the
// teacher's tag:key=value log style, until ctx is cancelled.
func reportThroughput(ctx context.Context, driver *tsmf.Driver) {
	const period = 30 * time.Second
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	var lastBytes uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := driver.Stats()
			deltaBytes := st.BytesRead - lastBytes
			lastBytes = st.BytesRead
			log.Printf("tsmfdemux: stats bytesRead=%d (+%d/%s) emitted=%d rejected=%d syncLoss=%d headersSeen=%d tlvFragments=%d packetSize=%d slotCounter=%d",
				st.BytesRead, deltaBytes, period, st.PacketsEmitted, st.PacketsRejected, st.SyncLost, st.HeadersSeen, st.TLVFragments, st.PacketSize, st.SlotCounter)
		}
	}
}

// openSource opens cfg.SourceAddr as an io.Reader: "-" for stdin,
// "tcp://host:port" dialed via device.OpenStream, anything else treated as
// a filesystem path. The returned io.Closer is nil for stdin.
func openSource(ctx context.Context, sourceAddr string) (io.Reader, io.Closer, error) {
	if sourceAddr == "-" || sourceAddr == "" {
		return os.Stdin, nil, nil
	}
	if strings.HasPrefix(sourceAddr, "tcp://") {
		conn, err := device.OpenStream(ctx, sourceAddr)
		if err != nil {
			return nil, nil, err
		}
		return conn, conn, nil
	}
	f, err := os.Open(sourceAddr)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

func applyFlagOverrides(cfg *config.Config, source, listen, metricsAddr, onid, tsid string, relative, dropNulls bool) {
	if source != "" {
		cfg.SourceAddr = source
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if onid != "" {
		if v, err := strconv.ParseUint(onid, 0, 16); err == nil {
			cfg.SelectedONID = uint16(v)
		}
	}
	if tsid != "" {
		if v, err := strconv.ParseUint(tsid, 0, 16); err == nil {
			cfg.SelectedTSID = uint16(v)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "relative":
			cfg.Relative = relative
		case "drop-nulls":
			cfg.DropNulls = dropNulls
		}
	})
}
