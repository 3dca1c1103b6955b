package connect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joshua-takyi/staybook/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/supabase-community/supabase-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// InitSupabase returns a client with the service role key. Row ownership is
// checked in the services, so the key never leaves the server.
func InitSupabase(cfg *config.Config) (*supabase.Client, error) {
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %v", err)
	}
	return client, nil
}

// InitAuth returns a client with the anon key, used only to ask the auth
// server about a bearer token.
func InitAuth(cfg *config.Config) (*supabase.Client, error) {
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase auth client: %v", err)
	}
	return client, nil
}

func PostgresConnect(cfg *config.Config) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.IsDevelopment() {
		level = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping Postgres: %v", err)
	}
	return db, nil
}

func PostgresDisconnect(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func MongoDBConnect(cfg *config.Config) (*mongo.Client, error) {
	fullUri := strings.Replace(cfg.MongoDBURI, "<password>", cfg.MongoDBPassword, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	clientOptions := options.Client().ApplyURI(fullUri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}
	return client, nil
}

func MongoDBDisconnect(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %v", err)
	}
	return nil
}

// RedisConnect returns nil without error when no address is configured; the
// booking lock then falls back to an in-process mutex.
func RedisConnect(cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, booking locks are local to this instance")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUser,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %v", err)
	}
	return rdb, nil
}
