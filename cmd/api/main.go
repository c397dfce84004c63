package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"careportal.org/internal/auth"
	"careportal.org/internal/httpapi"
	"careportal.org/internal/obs"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("CAREPORTAL_COMMIT"))

	secret := os.Getenv("CAREPORTAL_AUTH_SECRET")
	if secret == "" {
		log.Fatal("missing CAREPORTAL_AUTH_SECRET")
	}
	dsn := os.Getenv("CAREPORTAL_PG_DSN")
	if dsn == "" {
		log.Fatal("missing CAREPORTAL_PG_DSN")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	sessions, err := auth.NewService(auth.NewPGStore(db), secret)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(sessions, httpapi.ReadyProbe{DB: db}, version)

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting careportal-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
