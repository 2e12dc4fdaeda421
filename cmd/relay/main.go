// cmd/relay/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/mindspar/mindspar/internal/auth"
	"github.com/mindspar/mindspar/internal/handlers"
	"github.com/mindspar/mindspar/internal/journal"
	"github.com/mindspar/mindspar/internal/middleware"
)

func main() {
	auth.Init()

	logger := logrus.New()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	rs := handlers.NewRelayServer(logger)

	// Journaling is optional; without Redis the relay still runs, just
	// without the historian audit trail.
	if os.Getenv("REDIS_ADDR") != "" {
		j, err := journal.Connect()
		if err != nil {
			logger.Warnf("journal disabled: %v", err)
		} else {
			rs.Journal = j
			defer j.Close()
		}
	}

	mux := http.NewServeMux()

	mux.Handle("/rooms/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.CreateRoomHandler(rs),
	)))
	mux.Handle("/rooms/list", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListRoomsHandler(rs),
	)))
	mux.Handle("/rooms/ws/", http.HandlerFunc(
		handlers.RoomWSHandler(logger, rs),
	))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	server := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("relay listening on %s", addr)
		errc <- server.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		log.Fatalf("server exited: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}
}
