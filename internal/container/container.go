package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshua-takyi/staybook/internal/config"
	"github.com/joshua-takyi/staybook/internal/gateway"
	"github.com/joshua-takyi/staybook/internal/helpers"
	"github.com/joshua-takyi/staybook/internal/lock"
	"github.com/joshua-takyi/staybook/internal/models"
	"github.com/joshua-takyi/staybook/internal/notify"
	"github.com/joshua-takyi/staybook/internal/pricing"
	"github.com/joshua-takyi/staybook/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/supabase-community/supabase-go"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

const (
	lockTTL  = 30 * time.Second
	lockWait = 5 * time.Second
)

// Clients are the connections opened in main. Postgres and Redis are
// optional and may be nil.
type Clients struct {
	Supabase *supabase.Client
	Auth     *supabase.Client
	Postgres *gorm.DB
	MongoDB  *mongo.Client
	Redis    *redis.Client
}

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database clients
	Clients       Clients
	TokenVerifier *helpers.SupabaseTokenVerifier

	UserService            *services.UserService
	AvailabilityService    *services.AvailabilityService
	BookingService         *services.BookingService
	PaymentService         *services.PaymentService
	CancellationService    *services.CancellationService
	NotificationDispatcher *services.NotificationDispatcher
	AdminService           *services.AdminService
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, clients Clients) (*Container, error) {
	// Initialize repositories
	var store models.BookingStore
	switch cfg.StoreDriver {
	case config.StorePostgres:
		if clients.Postgres == nil {
			return nil, fmt.Errorf("STORE_DRIVER=postgres needs a Postgres connection")
		}
		store = models.PostgresNewRepo(clients.Postgres)
	default:
		store = models.SupabaseNewRepo(clients.Supabase)
	}

	eventStore := models.MongodbNewRepo(clients.MongoDB, cfg.MongoDBDatabase)
	if err := eventStore.EnsureIndexes(ctx); err != nil {
		return nil, err
	}

	var locker lock.Locker = lock.NewLocalLocker(lockWait)
	if clients.Redis != nil {
		locker = lock.NewRedisLocker(clients.Redis, lockTTL, lockWait, logger)
	}

	razorpay := gateway.NewRazorpayClient(gateway.RazorpayConfig{
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: cfg.RazorpayKeySecret,
		BaseURL:   cfg.RazorpayBaseURL,
		Timeout:   cfg.GatewayTimeout,
	}, logger)

	mailer := notify.NewMailjetSender(notify.MailjetConfig{
		APIKey:    cfg.MailjetAPIKey,
		SecretKey: cfg.MailjetSecretKey,
		FromEmail: cfg.MailFromEmail,
		FromName:  cfg.MailFromName,
	}, logger)

	verifier := helpers.NewSupabaseTokenVerifier(ctx, cfg.SupabaseURL, clients.Auth.Auth, logger)

	userService := services.NewUserService(verifier, store, logger)
	availabilityService := services.NewAvailabilityService(store, logger)
	bookingService := services.NewBookingService(store, availabilityService, pricing.NewEngine(cfg.TaxRate), locker, eventStore, logger)
	dispatcher := services.NewNotificationDispatcher(store, mailer, eventStore, cfg.TaxRate, cfg.Currency, logger)
	paymentService := services.NewPaymentService(store, razorpay, bookingService, dispatcher, eventStore, cfg.Currency, logger)
	cancellationService := services.NewCancellationService(store, razorpay, bookingService, eventStore, logger)
	adminService := services.NewAdminService(store, bookingService, paymentService, logger)

	return &Container{
		Config:                 cfg,
		Logger:                 logger,
		Clients:                clients,
		TokenVerifier:          verifier,
		UserService:            userService,
		AvailabilityService:    availabilityService,
		BookingService:         bookingService,
		PaymentService:         paymentService,
		CancellationService:    cancellationService,
		NotificationDispatcher: dispatcher,
		AdminService:           adminService,
	}, nil
}
