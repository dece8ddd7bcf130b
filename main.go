package main

import (
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"github.com/nothing010101/pfp/config"
	"github.com/nothing010101/pfp/editor"
	"github.com/nothing010101/pfp/handlers/api/assets"
	"github.com/nothing010101/pfp/handlers/api/documents"
	"github.com/nothing010101/pfp/handlers/api/exports"
	"github.com/nothing010101/pfp/handlers/api/workspaces"
	"github.com/nothing010101/pfp/handlers/websocket"
	pfpmiddleware "github.com/nothing010101/pfp/middleware"
	"github.com/nothing010101/pfp/render"
	"github.com/nothing010101/pfp/stores"
)

func corsOptions(allowed []string) cors.Options {
	wildcard := false
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
	}

	return cors.Options{
		AllowedOrigins: allowed,
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			if wildcard {
				return true
			}
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			parsed, err := url.Parse(origin)
			if err != nil {
				return false
			}
			switch parsed.Hostname() {
			case "localhost", "127.0.0.1", "::1":
				return parsed.Scheme == "http" || parsed.Scheme == "https"
			}
			return false
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Export-Id"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	}
}

// newRegistry builds the workspace registry. The rasterizer and its image
// cache are shared; every workspace gets its own pipeline so exports of
// different workspaces do not block each other.
func newRegistry(cfg config.Config, store stores.Store) *editor.Registry {
	rasterizer := render.NewGGRasterizer(render.NewLoader(cfg.ImageCacheBytes))

	return editor.NewRegistry(store, func(id string) *editor.Workspace {
		pipeline := render.NewPipeline(rasterizer,
			render.WithScale(cfg.ExportScale),
			render.WithSettleDelay(cfg.ExportSettleDelay),
		)
		return editor.New(id,
			editor.WithCanvasSize(cfg.CanvasWidth, cfg.CanvasHeight),
			editor.WithPipeline(pipeline),
			editor.WithExportStore(store),
		)
	})
}

func setupRouter(cfg config.Config, store stores.Store, reg *editor.Registry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(cors.Handler(corsOptions(cfg.AllowedOrigins)))

	r.Route("/api/assets", func(r chi.Router) {
		r.Get("/", assets.HandleList(store))
		r.With(pfpmiddleware.AuthJWT(cfg.JWTSecret)).Post("/", assets.HandleUpload(store, cfg.MaxUploadBytes))
	})

	r.Route("/api/workspaces", func(r chi.Router) {
		workspaces.Routes(r, reg, store, store, store)
	})

	r.Route("/api/exports/{exportId}", func(r chi.Router) {
		r.Get("/", exports.HandleGet(store))
		r.Delete("/", exports.HandleDelete(store))
	})

	r.Route("/api/v2/documents", func(r chi.Router) {
		r.Post("/", documents.HandleCreate(store, reg))
		r.Get("/{id}", documents.HandleGet(store))
	})

	return r
}

func setupLogging(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(lvl)

	switch format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "prefixed":
		logrus.SetFormatter(&prefixed.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
			ForceFormatting: true,
		})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	logrus.SetOutput(os.Stdout)
	return nil
}

func waitForShutdown(ioo *socketio.Server, reg *editor.Registry) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	s := <-signalC
	logrus.WithField("signal", s.String()).Debug("Received signal")
	logrus.Info("Shutting down...")
	reg.Close()
	ioo.Close(nil)
	os.Exit(0)
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddr := flag.String("listen", ":3002", "Set the server listen address")
	logLevel := flag.String("loglevel", "info", "Set the logging level: debug, info, warn, error, fatal, panic")
	logFormat := flag.String("logformat", "text", "Set the log format: text, prefixed, json")
	flag.Parse()

	if err := setupLogging(*logLevel, *logFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	store := stores.GetStore(cfg)
	reg := newRegistry(cfg, store)

	r := setupRouter(cfg, store, reg)
	ioo := websocket.SetupSocketIO(reg, cfg.AllowedOrigins)
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	logrus.WithField("addr", *listenAddr).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddr, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(ioo, reg)
}
