package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "antcolony.ai/internal/persistence/log"
	"antcolony.ai/internal/persistence/snapshot"
	"antcolony.ai/internal/sim/colony"
	"antcolony.ai/internal/sim/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		colonyID   = flag.String("colony", "colony_1", "colony id")
		seed       = flag.Int64("seed", 0, "override the tuning seed (0 keeps tuning.yaml)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit + tuning + snapshot metadata)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	colonyDir := filepath.Join(*dataDir, "colonies", *colonyID)
	_ = os.MkdirAll(colonyDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Colony.Seed = *seed
	}

	// Optional read model; the colony runs the same without it.
	idx, err := openRuntimeIndex(colonyDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	rc := tune.RuntimeConfig(*colonyID)
	if idx != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		last, err := idx.LastRun(ctx)
		cancel()
		if err != nil {
			logger.Printf("index backend: last run: %v", err)
		}
		rc.FirstRun = last + 1
	}

	rt, err := colony.NewRuntime(rc, tune.ColonyConfig(), logger)
	if err != nil {
		logger.Fatalf("colony: %v", err)
	}
	cfg := rt.Config()
	logger.Printf("colony=%s run=%d seed=%d grid=%dx%d agents=%d food=%d",
		rt.ID(), rt.CurrentRun(), cfg.Seed, cfg.GridWidth, cfg.GridHeight, cfg.AgentCount, cfg.FoodSourceCount)

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(colonyDir)
	auditLog := persistlog.NewAuditLogger(colonyDir)
	defer tickLog.Close()
	defer auditLog.Close()
	if idx != nil {
		rt.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
		rt.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})
	} else {
		rt.SetTickLogger(tickLog)
		rt.SetAuditLogger(auditLog)
	}

	snapCh := make(chan snapshot.SnapshotV1, envInt("ANTCOLONY_SNAPSHOT_QUEUE", 2))
	rt.SetSnapshotSink(snapCh)
	sw := &snapshotWriter{colonyDir: colonyDir, idx: idx, log: logger}
	go sw.run(ctx, snapCh)

	go func() {
		if err := rt.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("colony stopped: %v", err)
		}
	}()

	srv := &http.Server{
		Addr: *addr,
		Handler: newMux(muxConfig{
			Runtime:     rt,
			Index:       idx,
			Logger:      logger,
			EnableAdmin: envBool("ANTCOLONY_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
			EnablePprof: envBool("ANTCOLONY_ENABLE_PPROF_HTTP", false),
			AllowRemote: envBool("ANTCOLONY_OBSERVER_ALLOW_REMOTE", false),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

type multiTickLogger struct {
	a colony.TickLogger
	b colony.TickLogger
}

func (m multiTickLogger) WriteTick(entry colony.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a colony.AuditLogger
	b colony.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry colony.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
