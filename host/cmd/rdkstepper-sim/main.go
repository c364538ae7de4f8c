// Command rdkstepper-sim runs a simulated stepper drive in real time and
// serves its serial user interface over TCP.
package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/d2r2/go-logger"

	"rdkstepper/core"
	"rdkstepper/params"
	"rdkstepper/sim"
	"rdkstepper/ui"
)

var lg = logger.NewPackageLogger("sim", logger.InfoLevel)

var (
	configFile = flag.String("config", "", "JSON configuration file")
	listen     = flag.String("listen", "localhost:5555", "TCP listen address")
	slice      = flag.Duration("slice", time.Millisecond, "Simulated time advanced per real-time slice")
	verbose    = flag.Bool("verbose", false, "Enable verbose output")
)

func main() {
	defer logger.FinalizeLogger()
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		lg.Fatalf("%v", err)
	}
	if *verbose || cfg.Debug {
		logger.ChangePackageLogLevel("sim", logger.DebugLevel)
	}
	core.SetDebugWriter(func(s string) { lg.Info(s) })
	core.SetDebugEnabled(*verbose || cfg.Debug)
	core.InitAsyncDebug()

	region, err := params.OpenFileRegion(cfg.ParamFile, 8*params.BlockSize)
	if err != nil {
		lg.Fatalf("Failed to open parameter file: %v", err)
	}
	defer region.Close()
	store, err := params.NewStore(region)
	if err != nil {
		lg.Fatalf("Failed to open parameter store: %v", err)
	}
	if _, err := store.Load(); err == params.ErrNoBlock {
		// first run, seed the store with the configured parameters
		if err := store.Save(&cfg.Parameters); err != nil {
			lg.Fatalf("Failed to save parameters: %v", err)
		}
	}

	m := sim.NewMachine(sim.Motor{
		BusMilliVolts:        cfg.BusMilliVolts,
		ResistanceMilliOhms:  uint32(cfg.Parameters.Resistance),
		InductanceMicroHenry: cfg.InductanceMicroHenry,
	})
	link := ui.NewLink(m.Do)
	u := ui.New(m.Stepper, store, m.Stage, cfg.BusMilliVolts, link.Output())
	link.Attach(u)
	if err := u.LoadParams(); err != nil {
		lg.Warnf("Failed to load parameters: %v", err)
	}
	p := u.Parameters()
	lg.Infof("Drive parameters: %s", p.String())

	ln, err := net.Listen("tcp", addr(cfg, *listen))
	if err != nil {
		lg.Fatalf("Failed to listen: %v", err)
	}
	lg.Infof("Serving on tcp://%s", ln.Addr())

	go runClock(m, u, *slice)
	go runUI(m, link, u)
	go accept(ln, link, u)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	lg.Info("Shutting down")
	ln.Close()
	m.Do(m.Stepper.EmergencyStop)
}

func loadConfig(path string) (*params.Config, error) {
	data := []byte("{}")
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}
	return params.LoadConfig(data)
}

// addr prefers an explicit -listen over the configured port
func addr(cfg *params.Config, flagAddr string) string {
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "listen" {
			explicit = true
		}
	})
	if !explicit && cfg.Port != "" {
		return cfg.Port
	}
	return flagAddr
}

// runClock keeps virtual time in step with the wall clock and reports the
// share of each slice spent simulating as the processor usage
func runClock(m *sim.Machine, u *ui.UI, slice time.Duration) {
	ticker := time.NewTicker(slice)
	defer ticker.Stop()

	var busy, total time.Duration
	for range ticker.C {
		start := time.Now()
		m.Run(slice)
		busy += time.Since(start)
		total += slice

		if total >= time.Second {
			u.SetProcessorUsage(uint8(min(100, busy*100/total)))
			busy, total = 0, 0
		}
	}
}

// runUI runs the UI task and dumps the timing ring on a new fault
func runUI(m *sim.Machine, link *ui.Link, u *ui.UI) {
	ticker := time.NewTicker(time.Second / ui.TickRate)
	defer ticker.Stop()
	var faults uint8
	for range ticker.C {
		if err := link.Tick(u); err != nil {
			lg.Debugf("data frame: %v", err)
		}

		var now uint8
		m.Do(func() { now = m.Stepper.FaultFlags() })
		if now&^faults != 0 {
			lg.Warnf("Fault flags %#02x", now)
			m.Do(core.DumpTimingRing)
		}
		faults = now
	}
}

func accept(ln net.Listener, link *ui.Link, u *ui.UI) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			lg.Debugf("accept: %v", err)
			return
		}
		lg.Infof("Host connected from %s", conn.RemoteAddr())
		err = link.Serve(u, conn)
		lg.Infof("Host disconnected: %v", err)
		conn.Close()
	}
}
