package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/jessevdk/go-flags"
	"github.com/pccr10001/smsnotify/internal/api"
	"github.com/pccr10001/smsnotify/internal/auth"
	"github.com/pccr10001/smsnotify/internal/config"
	"github.com/pccr10001/smsnotify/internal/logic"
	"github.com/pccr10001/smsnotify/internal/mccmnc"
	"github.com/pccr10001/smsnotify/internal/mcpserver"
	"github.com/pccr10001/smsnotify/internal/model"
	"github.com/pccr10001/smsnotify/internal/modem"
	"github.com/pccr10001/smsnotify/internal/repository"
	"github.com/pccr10001/smsnotify/internal/sms"
	"github.com/pccr10001/smsnotify/internal/worker"
	"github.com/pccr10001/smsnotify/pkg/logger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const version = "1.0.0"

type options struct {
	Config    string `short:"c" long:"config" description:"Config file (default ./config.yaml)"`
	ListPorts bool   `long:"list-ports" description:"Print the serial ports and exit"`
	Version   bool   `short:"v" long:"version" description:"Print the version and exit"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if opts.Version {
		fmt.Println(version)
		return
	}
	if opts.ListPorts {
		ports, err := modem.ListPorts()
		if err != nil {
			log.Fatalf("Failed to list ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	// 1. Load Config
	if err := config.LoadConfigFile(opts.Config); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.AppConfig

	// 2. Init Logger
	if err := logger.InitLogger(logger.Options{
		Level:      cfg.Log.Level,
		Output:     cfg.Log.Output,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()
	logger.Log.Infof("Starting SMS notifier %s...", version)

	if auth.Configure(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL) {
		logger.Log.Warn("auth.jwt_secret is not set; using a random secret, tokens will not survive a restart")
	}

	operators, err := mccmnc.Load(cfg.SMS.OperatorsFile)
	if err != nil {
		logger.Log.Warnf("Failed to load MCC/MNC data: %v", err)
	} else {
		logger.Log.Infof("Loaded %d network operators", operators.Len())
	}

	// 3. Init Database
	db := initDB(cfg.Database)
	messages := repository.NewMessageRepository(db)
	webhooks := repository.NewWebhookRepository(db)

	// 4. Modem
	session, err := modem.NewSession(modem.Config{
		PortName:          cfg.SMS.Port,
		BaudRate:          cfg.SMS.Baud,
		InterCommandDelay: cfg.SMS.InterCommandDelay(),
		ReadPoll:          cfg.SMS.ReadPoll(),
	})
	if err != nil {
		logger.Log.Fatalf("Invalid modem settings: %v", err)
	}
	engine, err := sms.NewEngine(session, sms.Config{
		Name:           cfg.SMS.Port,
		CommandTimeout: cfg.SMS.CommandTimeout(),
		SendTimeout:    cfg.SMS.SendTimeout(),
	})
	if err != nil {
		logger.Log.Fatalf("Failed to create SMS engine: %v", err)
	}
	// The port is opened lazily; an absent modem only delays the first send.
	if _, err := engine.Probe(); err != nil {
		logger.Log.Warnf("Modem on %s is not responding yet: %v", cfg.SMS.Port, err)
	} else {
		logger.Log.Infof("Modem on %s is responding", cfg.SMS.Port)
	}

	// 5. Delivery queue and its observers
	recorder := logic.NewMessageRecorder(messages)
	bus := logic.NewEventBus(0)
	var static []model.Webhook
	if cfg.Alert.WebhookURL != "" {
		static = append(static, model.Webhook{
			Name:      "config",
			URL:       cfg.Alert.WebhookURL,
			Platform:  cfg.Alert.Platform,
			ChannelID: cfg.Alert.ChannelID,
			Enabled:   true,
		})
	}
	alerts := logic.NewWebhookService(webhooks, static...)

	queue, err := worker.NewQueue(engine, worker.Options{
		Capacity: cfg.Queue.Capacity,
		Overflow: worker.Overflow(cfg.Queue.Overflow),
	}, recorder, bus, alerts)
	if err != nil {
		logger.Log.Fatalf("Failed to start delivery queue: %v", err)
	}

	notifier, err := logic.NewNotificationService(queue, cfg.SMS.ClubNumber, cfg.Notify.CustomerTemplate, cfg.Notify.ClubTemplate)
	if err != nil {
		logger.Log.Fatalf("Invalid notification templates: %v", err)
	}
	if cfg.SMS.ClubNumber == "" {
		logger.Log.Warn("sms.club_number is not set; club copies will not be sent")
	}

	// 6. Init Router
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(api.CORSMiddleware(cfg.Server.AllowedOrigins))

	modemHandler := api.NewModemHandler(engine, cfg.SMS.Port, queue, messages, modem.ListPorts)
	modemHandler.SetOperators(operators)
	modemHandler.SetEvents(bus)

	handlers := api.Handlers{
		Users:         api.NewUserHandler(db),
		SMS:           api.NewSMSHandler(engine, queue, messages, recorder),
		Modem:         modemHandler,
		Webhooks:      api.NewWebhookHandler(webhooks),
		Notifications: api.NewNotificationHandler(notifier),
		Events:        api.NewEventsHandler(bus),
	}
	if cfg.Server.EnableMCP {
		handlers.MCP = mcpserver.New(version, engine, queue, recorder).Handler()
	}
	api.RegisterRoutes(r, db, handlers)

	// 7. Start Server
	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}
	go func() {
		logger.Log.Infof("Server listening on %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Log.Infof("Received %s, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Errorf("HTTP shutdown: %v", err)
	}
	queue.Close()
	if err := queue.Wait(ctx); err != nil {
		logger.Log.Warnf("Delivery queue not drained before timeout: %v (%d job(s) left)", err, queue.Depth())
	}
	alerts.Wait()
	if err := engine.Close(); err != nil {
		logger.Log.Warnf("Closing modem port: %v", err)
	}
	logger.Log.Info("Bye")
}

func initDB(cfg config.DatabaseConfig) *gorm.DB {
	var db *gorm.DB
	var err error

	switch cfg.Driver {
	case "mysql":
		db, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{})
	default:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "smsnotify.db"
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	}
	if err != nil {
		logger.Log.Fatalf("Failed to connect database (%s): %v", cfg.Driver, err)
	}

	if err := db.AutoMigrate(&model.User{}, &model.Message{}, &model.Webhook{}); err != nil {
		logger.Log.Fatalf("Failed to migrate database: %v", err)
	}

	// Init Admin
	var count int64
	db.Model(&model.User{}).Count(&count)
	if count == 0 {
		randPw, err := randomPassword(12)
		if err != nil {
			logger.Log.Fatalf("Failed to generate random password: %v", err)
		}
		hash, err := api.HashPassword(randPw)
		if err != nil {
			logger.Log.Fatalf("Failed to hash password: %v", err)
		}
		admin := model.User{
			Username:     "admin",
			PasswordHash: hash,
			Role:         "admin",
		}
		if err := db.Create(&admin).Error; err != nil {
			logger.Log.Fatalf("Failed to create admin: %v", err)
		}
		logger.Log.Warnf("INITIAL ADMIN CREATED. Username: admin, Password: %s", randPw)
	}

	return db
}

func randomPassword(n int) (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ret := make([]byte, n)
	for i := range ret {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		ret[i] = chars[num.Int64()]
	}
	return string(ret), nil
}
