package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/openridge/trackmap/internal/api"
	"github.com/openridge/trackmap/internal/config"
	"github.com/openridge/trackmap/internal/queryhost"
	"github.com/openridge/trackmap/internal/store"
	"github.com/openridge/trackmap/internal/version"
	"github.com/openridge/trackmap/internal/viewcache"
)

var (
	devMode       = flag.Bool("dev", false, "Run in dev mode")
	listen        = flag.String("listen", ":8080", "Listen address")
	dbPath        = flag.String("db", "activities.db", "Path to the activity database")
	configPath    = flag.String("config", "", "Path to an engine tuning config (JSON)")
	migrationsDir = flag.String("migrations", "", "Run schema migrations from this directory before serving")
	staticDir     = flag.String("static", "", "Serve the map UI from this directory")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	log.Printf("trackmap %s (%s)", version.Version, version.GitSHA)

	var cfg *config.EngineConfig
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	db, err := store.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if *migrationsDir != "" {
		if err := db.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	activities, err := db.LoadAll()
	if err != nil {
		log.Fatalf("Failed to load activities: %v", err)
	}
	log.Printf("loaded %d activities from %s", len(activities), *dbPath)

	host := queryhost.New(cfg.GetChunkSize())
	host.SetStrict(*devMode || cfg.GetStrict())
	host.BulkLoad(activities)

	cache := viewcache.New(cfg.GetCacheCapacity())
	cache.SetStaleCenterFraction(cfg.GetStaleCenterFraction())

	// Wait group for the query worker and HTTP server routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the query worker that owns the spatial state
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := host.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("query worker failed: %v", err)
		}
		log.Print("query worker terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		db.AttachAdminRoutes(mux)

		// the API mux registers full paths, so no prefix stripping is needed
		apiMux := api.NewServer(host, cache, db, cfg).ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/debug/charts/", apiMux)

		if *staticDir != "" {
			mux.Handle("/", http.FileServer(http.Dir(*staticDir)))
		} else {
			mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("Activity map server. API under /api/.\n"))
			})
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
