// Command associate registers a warehouse associate in the configured store.
//
//	associate --name bob --manager < secret.txt
//
// The secret is read from INVENTORY_ASSOCIATE_SECRET or, when unset, from the
// first line of stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rl1809/warehouse-inventory/internal/adapter/idgen"
	"github.com/rl1809/warehouse-inventory/internal/adapter/storage"
	"github.com/rl1809/warehouse-inventory/internal/config"
	"github.com/rl1809/warehouse-inventory/internal/core/service"
)

func main() {
	flags := config.NewFlagSet("associate")
	name := flags.String("name", "", "associate login name")
	manager := flags.Bool("manager", false, "grant manager rights")
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fail(err)
	}
	if cfg.Storage.Driver == "memory" {
		fail(errors.New("storage.driver must name a database, the memory store does not outlive this command"))
	}

	secret, err := readSecret()
	if err != nil {
		fail(err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fail(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, closeDB, err := storage.OpenSQLAdapter(ctx, cfg.Storage.Driver, cfg.Storage.DSN, storage.PoolConfig{
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
	})
	if err != nil {
		fail(err)
	}
	defer closeDB()

	ids, err := idgen.NewSnowflake(cfg.IDGen.Node)
	if err != nil {
		fail(err)
	}

	auth := service.NewAuthService(repo, ids, nil, nil, cfg.Auth.TokenTTL, logger)
	associate, err := auth.Register(ctx, *name, secret, *manager)
	if err != nil {
		fail(err)
	}
	fmt.Printf("registered associate %s (id %d, manager=%t)\n", associate.Name, associate.ID, associate.IsManager)
}

func readSecret() (string, error) {
	if secret := os.Getenv("INVENTORY_ASSOCIATE_SECRET"); secret != "" {
		return secret, nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read secret from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "associate:", err)
	os.Exit(1)
}
