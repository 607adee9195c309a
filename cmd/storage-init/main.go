// storage-init provisions the Azure table and change queue used by the
// table backend and the change feed. Existing resources are left as is.
package main

import (
	"context"
	"errors"
	"flag"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"study-planner/config"
)

const queueAlreadyExists = "QueueAlreadyExists"

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (default $CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if cfg.StorageConnectionString == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	log.Info("storage init starting")

	ctx := context.Background()
	if cfg.StorageBackend == config.BackendTable {
		if err := createTable(ctx, cfg.StorageConnectionString, cfg.RecordsTable); err != nil {
			log.Fatalf("create table %s: %v", cfg.RecordsTable, err)
		}
		log.WithField("table", cfg.RecordsTable).Info("table ready")
	}
	if cfg.ChangeQueue != "" {
		if err := createQueue(ctx, cfg.StorageConnectionString, cfg.ChangeQueue); err != nil {
			log.Fatalf("create queue %s: %v", cfg.ChangeQueue, err)
		}
		log.WithField("queue", cfg.ChangeQueue).Info("queue ready")
	}

	log.Info("storage init complete")
}

func createTable(ctx context.Context, connStr, name string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	_, err = svc.NewClient(name).CreateTable(ctx, nil)
	if isAlreadyExists(err, string(aztables.TableAlreadyExists)) {
		return nil
	}
	return err
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	_, err = q.Create(ctx, nil)
	if isAlreadyExists(err, queueAlreadyExists) {
		return nil
	}
	return err
}

func isAlreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
