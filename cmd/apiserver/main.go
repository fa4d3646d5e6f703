package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	redisDriver "github.com/redis/go-redis/v9"

	"connect-go/internal/auth"
	"connect-go/internal/config"
	"connect-go/internal/handlers/apiserver"
	appKafka "connect-go/internal/kafka"
	kafkahandlers "connect-go/internal/kafka/handlers"
	"connect-go/internal/lock"
	"connect-go/internal/metrics"
	"connect-go/internal/middleware"
	appRedis "connect-go/internal/redis"
	"connect-go/internal/services"
	"connect-go/internal/storage"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig(os.Getenv("CONNECT_CONFIG"))
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Printf("%s %s 配置加载成功。", cfg.AppName, cfg.AppVersion)

	// 2. 初始化数据库连接
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatalf("数据库表迁移失败: %v", err)
	}
	log.Println("数据库连接及表迁移成功。")

	// 3. Redis: token 黑名单, 以及可选的分布式 pair lock
	var (
		blacklist auth.TokenBlacklist
		locker    lock.PairLocker
	)
	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	cancelPing()
	switch {
	case err == nil:
		log.Println("成功连接到 Redis")
		blacklist = appRedis.NewRedisTokenBlacklist(redisClient)
	case cfg.Lock.Backend == "redis":
		log.Fatalf("LOCK.BACKEND=redis 但无法连接到 Redis: %v", err)
	default:
		log.Printf("警告: 无法连接到 Redis (%v)，登出黑名单仅在本进程内有效", err)
		blacklist = auth.NewMemoryBlacklist()
	}
	if cfg.Lock.Backend == "redis" {
		locker = appRedis.NewRedisPairLocker(redisClient, cfg.Lock)
	} else {
		locker = lock.NewLocalPairLocker(cfg.Lock.WaitTimeout)
	}
	log.Printf("pair lock backend: %s", cfg.Lock.Backend)

	// 4. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// 5. Kafka producer (可选)
	var publisher services.EventPublisher
	if cfg.Kafka.Enabled {
		producer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
		if err != nil {
			log.Fatalf("无法创建 Kafka 生产者: %v", err)
		}
		defer producer.Close()
		publisher = appKafka.NewRequestEventPublisher(producer, cfg.Kafka.ConnectionEventsTopic)
		log.Printf("Kafka 生产者初始化成功，topic: %s", cfg.Kafka.ConnectionEventsTopic)
	}

	// 6. Services
	userRepo := storage.NewGormUserRepository(db)
	authService := services.NewAuthService(userRepo, blacklist, cfg.Auth)
	userService := services.NewUserService(userRepo)
	ledger := services.NewConnectionRequestService(db, locker, publisher, m)
	feed := services.NewFeedService(db, m)

	// 7. Kafka consumer: 对 accepted 事件做 Reconcile
	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()
	var consumerWG sync.WaitGroup
	if cfg.Kafka.Enabled {
		consumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
		if err != nil {
			log.Fatalf("无法创建 Kafka 消费者: %v", err)
		}
		defer consumer.Close()

		eventHandler := kafkahandlers.NewRequestEventHandler(ledger, m)
		consumerWG.Add(1)
		go func() {
			defer consumerWG.Done()
			topics := []string{cfg.Kafka.ConnectionEventsTopic}
			log.Printf("Kafka 消费者启动，监听 topic: %s, GroupID: %s", cfg.Kafka.ConnectionEventsTopic, cfg.Kafka.ConsumerGroup)
			err := consumer.Consume(consumerCtx, topics, cfg.Kafka.ConsumerGroup, eventHandler.Handle)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Kafka 消费者错误: %v", err)
			}
			log.Println("Kafka 消费者 goroutine 已停止。")
		}()
	}

	// 8. 路由
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	r := apiserver.NewRouter(apiserver.RouterDeps{
		DB:          db,
		Auth:        cfg.Auth,
		RateLimit:   cfg.RateLimit,
		Blacklist:   blacklist,
		AuthService: authService,
		UserService: userService,
		Ledger:      ledger,
		Feed:        feed,
		Gatherer:    registry,
		Limiter:     limiter,
	})

	// 定期清理空闲的限流器
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-consumerCtx.Done():
				return
			case <-ticker.C:
				if n := limiter.Cleanup(10 * time.Minute); n > 0 {
					log.Printf("rate limiter: dropped %d idle entries", n)
				}
			}
		}
	}()

	// 9. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      apiserver.WithCORS(cfg.APIServer.CORS, r),
		ReadTimeout:  cfg.APIServer.ReadTimeout,
		WriteTimeout: cfg.APIServer.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("API 服务器启动于 %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API 服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到关闭信号，正在关闭 API 服务器...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Printf("API 服务器强制关闭: %v", err)
	}

	cancelConsumers()
	consumerWG.Wait()
	log.Println("API 服务器已成功关闭")
}
