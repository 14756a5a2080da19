package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/w1xm/lx200_interface/lx200"
)

var (
	configPath  = flag.String("config", "", "path to YAML config file")
	listenAddr  = flag.String("listen", "", "HTTP listen address (overrides config)")
	rotctldAddr = flag.String("rotctld", "", "rotctld listen address (overrides config)")
	serialPort  = flag.String("serial", "", "serial port name (overrides config)")
	staticDir   = flag.String("static_dir", "", "directory containing static files (overrides config)")
)

func main() {
	flag.Parse()
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *listenAddr != "" {
		cfg.Server.Listen = *listenAddr
	}
	if *rotctldAddr != "" {
		cfg.Server.RotctldListen = *rotctldAddr
	}
	if *serialPort != "" {
		cfg.Telescope.Device = *serialPort
	}
	if *staticDir != "" {
		cfg.Server.StaticDir = *staticDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var site lx200.Site
	if cfg.Site != nil {
		fs, err := cfg.Site.site()
		if err != nil {
			log.Fatalf("site config: %v", err)
		}
		site = fs
	}

	s := NewServer()
	tel, err := lx200.New(cfg.Telescope, site, s.statusCallback)
	if err != nil {
		log.Fatalf("connecting to mount: %v", err)
	}
	defer tel.Close()
	s.mu.Lock()
	s.tel = tel
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tel.Watch(ctx, cfg.Server.StatusInterval.D())
	})

	if cfg.Server.RotctldListen != "" {
		if err := s.ListenRotctld(ctx, cfg.Server.RotctldListen); err != nil {
			log.Fatalf("rotctld listen: %v", err)
		}
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler)
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.Server.StaticDir)))
	srv := &http.Server{
		Handler:           r,
		Addr:              cfg.Server.Listen,
		ReadHeaderTimeout: 15 * time.Second,
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Print("shutdown; closing http server")
		return srv.Close()
	})
	g.Go(func() error {
		log.Printf("listening on %v", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
