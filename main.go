package main

import (
	"context"
	"flag"
	"fmt"
	"inkboard/core"
	"inkboard/handlers/api/drawings"
	"inkboard/handlers/websocket"
	"inkboard/stores"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

func allowLocalOrigin(r *http.Request, origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil || origin == "" {
		return false
	}
	switch parsed.Scheme {
	case "http", "https":
		switch parsed.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
	}
	return false
}

func setupRouter(store core.DrawingStore, hub *websocket.Hub) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  allowLocalOrigin,
		AllowedMethods:   []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{"Last-Modified"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var notify drawings.Notifier
	if hub != nil {
		notify = hub
	}
	r.Route("/api/v1", func(r chi.Router) {
		drawings.Routes(r, store, notify)
	})

	r.Get("/api/viewers", func(w http.ResponseWriter, r *http.Request) {
		viewers := map[string]int{}
		if hub != nil {
			viewers = hub.Viewers()
		}
		render.JSON(w, r, viewers)
	})

	return r
}

func waitForShutdown(srv *http.Server, ioo *socketio.Server) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	<-signalC

	logrus.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ioo.Close(nil)
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("Server shutdown incomplete")
	}
}

func main() {
	logLevel := flag.String("loglevel", "info", "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", ":3002", "Set the server listen address")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	store, err := stores.GetStore(context.Background())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize storage")
	}

	ioo, hub := websocket.SetupSocketIO()
	r := setupRouter(store, hub)
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	srv := &http.Server{Addr: *listenAddr, Handler: r}
	logrus.WithField("addr", *listenAddr).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(srv, ioo)
}
