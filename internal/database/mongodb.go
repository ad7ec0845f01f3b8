package database

import (
	"context"
	"fmt"

	"github.com/siteadmin/content-services/internal/config"
	"github.com/siteadmin/content-services/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectMongo opens the document store client and checks that the primary
// answers. The client is disconnected again when the ping fails.
func ConnectMongo(ctx context.Context, cfg config.MongoDBConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	opts := options.Client().ApplyURI(cfg.URI).SetServerSelectionTimeout(cfg.Timeout)
	if cfg.AppName != "" {
		opts.SetAppName(cfg.AppName)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	logger.Infof("connected to MongoDB database %q as %s", cfg.Database, cfg.AppName)
	return client, nil
}
