package service

import (
	"log/slog"

	"github.com/gigaloka/loket-go/internal/repository"
	redisrepo "github.com/gigaloka/loket-go/internal/repository/redis"
	"github.com/gigaloka/loket-go/internal/service/admin"
	"github.com/gigaloka/loket-go/internal/service/checkout"
	"github.com/gigaloka/loket-go/internal/service/promotions"
	"github.com/gigaloka/loket-go/internal/service/query"
	"github.com/gigaloka/loket-go/internal/service/sweeper"
	"github.com/gigaloka/loket-go/internal/service/transactions"
)

type Services struct {
	Checkout     *checkout.Service
	Transactions *transactions.Service
	Sweeper      *sweeper.Service
	Query        *query.Service
	Admin        *admin.Service
	Promotions   *promotions.Service
}

type Config struct {
	Transactions transactions.Config
	Sweeper      sweeper.Config
}

func NewServices(
	store repository.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	log *slog.Logger,
	cfg Config,
) *Services {
	return &Services{
		Checkout:     checkout.New(store, cache, pubsub, limiter),
		Transactions: transactions.New(store, cache, pubsub, cfg.Transactions),
		Sweeper:      sweeper.New(store, cache, pubsub, log, cfg.Sweeper),
		Query:        query.New(store, cache),
		Admin:        admin.New(store, pubsub),
		Promotions:   promotions.New(store),
	}
}
