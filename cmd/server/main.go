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

	"github.com/jmwangi/chamaledger/internal/api"
	"github.com/jmwangi/chamaledger/internal/config"
	"github.com/jmwangi/chamaledger/internal/handler"
	"github.com/jmwangi/chamaledger/internal/infrastructure/kafka"
	"github.com/jmwangi/chamaledger/internal/infrastructure/redis"
	"github.com/jmwangi/chamaledger/internal/observability"
	core "github.com/jmwangi/chamaledger/internal/repository/postgres"
	service "github.com/jmwangi/chamaledger/internal/services"
	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	shutdown, _ := observability.Setup("chama-ledger")
	defer shutdown(context.Background())

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	store := core.NewStore(db)
	accountRepo := core.NewPostgresAccountRepository(db, cfg.LockTimeout)
	transactionRepo := core.NewPostgresTransactionRepository(db)
	auditRepo := core.NewPostgresAuditRepository(db)
	memberRepo := core.NewPostgresMemberRepository(db)

	redisClient, err := redis.NewClient(cfg.RedisAddr)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	svc := service.NewLedgerService(store, accountRepo, transactionRepo, auditRepo, memberRepo, redisClient, producer)

	callbackConsumer := kafka.NewConsumer(cfg.KafkaBrokers, "payments.callbacks", "chama-ledger-group", svc)
	go callbackConsumer.Consume(context.Background())
	defer callbackConsumer.Close()

	h := handler.NewHandler(svc, producer)
	router := api.SetupRouter(h, redisClient, cfg.JWTSecret)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
