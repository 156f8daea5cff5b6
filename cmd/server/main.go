package main

import (
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/movie-ticket-booking/internal/booking"
	"github.com/iliyamo/movie-ticket-booking/internal/config"
	"github.com/iliyamo/movie-ticket-booking/internal/database"
	"github.com/iliyamo/movie-ticket-booking/internal/handler"
	"github.com/iliyamo/movie-ticket-booking/internal/payment"
	"github.com/iliyamo/movie-ticket-booking/internal/queue"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
	"github.com/iliyamo/movie-ticket-booking/internal/router"
)

func main() {
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	store := database.NewStore(db)
	showtimeRepo := repository.NewShowtimeRepo(db)
	seatRepo := repository.NewSeatRepo(db)
	bookingRepo := repository.NewBookingRepo(db)

	coordinator := booking.NewCoordinator(store, showtimeRepo, seatRepo, bookingRepo, logger)
	sink := booking.NewPaymentSink(store, bookingRepo, logger)

	ecpay := payment.ECPayConfig{
		MerchantID: cfg.ECPayMerchantID,
		HashKey:    cfg.ECPayHashKey,
		HashIV:     cfg.ECPayHashIV,
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, cache and rate limiting disabled")
	}

	e := echo.New()
	e.HideBanner = true

	router.RegisterHealth(e)
	router.RegisterBrowse(e, handler.NewBrowseHandler(showtimeRepo, seatRepo, bookingRepo), config.LoadCacheConfig(), rdb)
	router.RegisterBooking(e, handler.NewBookingHandler(coordinator, bookingRepo, logger), cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)
	router.RegisterPayments(e, handler.NewPaymentHandler(sink, bookingRepo, ecpay, cfg.ECPayReturnURL, logger), cfg.JWTSecret)

	go queue.StartBookingConsumer(logger)

	addr := ":" + cfg.Port
	logger.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("server starting")
	if err := e.Start(addr); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}
