package main

import (
	"context"

	"go.uber.org/zap"

	config "github.com/NordCoder/Taskly/internal/config/api-gateway"
	"github.com/NordCoder/Taskly/internal/domain/outbox"
	"github.com/NordCoder/Taskly/internal/domain/task"
	"github.com/NordCoder/Taskly/internal/domain/user"
	"github.com/NordCoder/Taskly/internal/repository/memory"
	pg "github.com/NordCoder/Taskly/internal/repository/postgres"
	"github.com/NordCoder/Taskly/internal/services/api-gateway/auth"
)

type stores struct {
	users  user.Repo
	tasks  task.Repo
	outbox outbox.Repository
	tx     auth.Transactor
	health func(context.Context) error
	close  func()
}

func initStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.DB.Driver == config.DriverMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		users := memory.NewUserRepo()
		return &stores{
			users:  users,
			tasks:  memory.NewTaskRepo(users),
			outbox: memory.NewOutboxRepo(),
			tx:     memory.Transactor{},
			health: func(context.Context) error { return nil },
			close:  func() {},
		}, nil
	}

	db, err := pg.New(ctx, cfg.DB.Postgres)
	if err != nil {
		return nil, err
	}
	logger.Info("postgres connected")
	return &stores{
		users:  pg.NewUserRepo(db),
		tasks:  pg.NewTaskRepo(db),
		outbox: pg.NewOutboxRepo(db),
		tx:     pg.NewTransactor(db, logger),
		health: db.Ping,
		close:  db.Close,
	}, nil
}
