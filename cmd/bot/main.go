package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/tgshopbot/internal/admin"
	"github.com/example/tgshopbot/internal/config"
	"github.com/example/tgshopbot/internal/cryptopay"
	"github.com/example/tgshopbot/internal/database"
	"github.com/example/tgshopbot/internal/repository"
	"github.com/example/tgshopbot/internal/service"
	"github.com/example/tgshopbot/internal/storage"
	"github.com/example/tgshopbot/internal/telegram"
	"github.com/example/tgshopbot/internal/worker"
	"github.com/example/tgshopbot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	gateway := cryptopay.NewClient(cfg, logr)

	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	productRepo := repository.NewProductRepository(db)
	purchaseRepo := repository.NewPurchaseRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	promoRepo := repository.NewPromoRepository(db)
	autodeliveryRepo := repository.NewAutodeliveryRepository(db)

	userService := service.NewUserService(userRepo)
	catalogService := service.NewCatalogService(categoryRepo, productRepo, autodeliveryRepo)
	promoService := service.NewPromoService(promoRepo, userRepo)
	deliveryService := service.NewDeliveryService(logr, autodeliveryRepo, telegram.NewSender(botAPI))
	purchaseService := service.NewPurchaseService(cfg, logr, purchaseRepo, paymentRepo, productRepo, userRepo, promoService, gateway, deliveryService)

	var mediaStorage telegram.MediaStorage
	if cfg.S3Configured() {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		mediaStorage = uploader
	} else {
		logr.Warn("S3 storage not configured, product photos disabled")
	}

	bot := telegram.NewBot(cfg, botAPI, logr, userService, catalogService, promoService, purchaseService, mediaStorage)

	reconciler := worker.NewReconciler(logr, purchaseRepo, deliveryService, cfg.ReconcileInterval, cfg.ReconcileBatch)
	go reconciler.Run(ctx)

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, userService, catalogService, promoService, purchaseService, botAPI)
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
