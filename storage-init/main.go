// Command storage-init creates the tables and queues taskboard expects in an
// Azure storage account. It is safe to run repeatedly.
package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"taskboard/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	tables := []string{os.Getenv("TASKS_TABLE"), os.Getenv("USERS_TABLE"), os.Getenv("PROJECTS_TABLE")}
	queues := []string{os.Getenv("ACTIVITY_QUEUE")}
	if err := storage.EnsureResources(ctx, connStr, tables, queues); err != nil {
		log.Fatalf("ensure resources: %v", err)
	}
	log.WithFields(log.Fields{"tables": tables, "queues": queues}).Info("storage init complete")
}
