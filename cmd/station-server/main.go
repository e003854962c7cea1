package main

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"station-core/internal/getreal"
	"station-core/internal/handler"
	"station-core/internal/model"
	"station-core/internal/nonce"
	"station-core/internal/relay"
	"station-core/internal/server"
	"station-core/internal/service"
	"station-core/internal/service/mq"
	"station-core/internal/signer"
	"station-core/internal/station"
	"station-core/internal/store"
	"station-core/internal/verify"
	"station-core/pkg/cache"
	"station-core/pkg/config"
	"station-core/pkg/database"
	"station-core/pkg/logger"
	"station-core/pkg/monitor"
	"station-core/pkg/safe_random"
	"station-core/pkg/utils/lock"
)

func main() {
	// 0. 初始化 Config
	config.Init()
	cfg := config.Global

	// 1. 初始化 Logger 与监控
	logger.Init(cfg.App.Env, cfg.App.LogLevel)
	defer logger.Sync()
	monitor.Init()

	// 2. 加载 Owner 私钥
	owner, err := signer.OwnerFromConfig(cfg.Chain)
	if err != nil {
		logger.Fatal("加载 Owner 私钥失败", zap.Error(err))
	}
	logger.Info("Owner 已加载", zap.String("address", owner.Address().Hex()))

	var machine signer.Signer
	if cfg.Chain.MachinePrivateKey != "" {
		m, err := signer.FromHex(cfg.Chain.MachinePrivateKey, "machine")
		if err != nil {
			logger.Fatal("加载设备私钥失败", zap.Error(err))
		}
		logger.Warn("服务端持有设备私钥，仅用于开发环境", zap.String("address", m.Address().Hex()))
		machine = m
	}

	// 3. 连接链节点并初始化执行器
	if !common.IsHexAddress(cfg.Chain.GasStationAddress) {
		logger.Fatal("gas_station_address 未配置或非法", zap.String("value", cfg.Chain.GasStationAddress))
	}
	eth, err := ethclient.Dial(cfg.Chain.RpcUrl)
	if err != nil {
		logger.Fatal("连接链节点失败", zap.String("rpc", cfg.Chain.RpcUrl), zap.Error(err))
	}
	defer eth.Close()

	relayCfg := relay.Config{
		Station:        common.HexToAddress(cfg.Chain.GasStationAddress),
		ConfirmTimeout: cfg.Chain.ConfirmTimeout,
		PollInterval:   cfg.Chain.PollInterval,
	}
	if cfg.Chain.ChainID > 0 {
		relayCfg.ChainID = big.NewInt(cfg.Chain.ChainID)
	}
	executor, err := relay.NewExecutor(context.Background(), eth, owner, relayCfg)
	if err != nil {
		logger.Fatal("初始化执行器失败", zap.Error(err))
	}

	// 4. 连接 Redis
	rdb, err := database.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}
	defer rdb.Close()

	// 5. 登记存储
	var (
		db       *gorm.DB
		registry station.Registry
	)
	if cfg.App.Storage == "memory" {
		logger.Warn("使用内存登记存储，重启后登记丢失")
		registry = station.NewMemoryRegistry()
	} else {
		db, err = database.ConnectPostgres(cfg.DB.DSN(), cfg.App.Env == "development")
		if err != nil {
			logger.Fatal("数据库连接失败", zap.Error(err))
		}
		if cfg.App.Env == "development" {
			logger.Info("开发环境: GORM AutoMigrate")
			if err := db.AutoMigrate(model.AllModels()...); err != nil {
				logger.Fatal("数据库自动迁移失败", zap.Error(err))
			}
		} else {
			logger.Info("生产环境: 跳过 AutoMigrate，请使用 migrate 工具管理 Schema")
		}
		registry = store.New(db)
	}

	// 6. Nonce 分配器
	allocator := newAllocator(cfg.Nonce, rdb)

	// 7. 登记缓存 (L1 内存 + L2 Redis) 与分布式锁
	mlc := cache.NewMultiLevelCache(
		cache.NewMemoryCache(10*time.Minute, time.Minute),
		cache.NewRedisCache(rdb, "station:"),
	)
	locker := lock.NewRedisLock(rdb)

	// 8. 远端签名服务
	var (
		remote   station.RemoteService
		verifier handler.RemoteVerifier
	)
	if cfg.GetReal.ServiceURL != "" {
		client := getreal.NewFromConfig(cfg.GetReal)
		remote, verifier = client, client
	} else {
		logger.Warn("未配置 getreal.service_url，文档与存储准备接口不可用")
	}

	// 9. 业务服务
	svc := station.NewService(station.Options{
		Owner:     owner,
		Machine:   machine,
		Relayer:   executor,
		Nonces:    allocator,
		Registry:  registry,
		Remote:    remote,
		Cache:     mlc,
		Lock:      locker,
		DIDMethod: cfg.DID.Method,
		Policy:    verify.Policy{RequireOwnerBinding: cfg.DID.RequireOwnerBinding},
	})

	// 10. 后台任务: outbox 中继、登记同步、对账
	producer, consumer := newMQ(cfg, rdb)
	defer producer.Close()
	defer consumer.Close()

	var workers []server.Worker
	if db != nil {
		outbox := service.NewOutboxRelayService(store.New(db), producer)
		workers = append(workers, outbox.Start)
	}
	registrySync := service.NewRegistrySyncService(consumer, mlc)
	workers = append(workers, func(ctx context.Context) {
		if err := registrySync.Start(ctx); err != nil {
			logger.Error("登记同步退出", zap.Error(err))
		}
	})
	reconcile := service.NewReconcileService(svc, locker)
	workers = append(workers, func(ctx context.Context) {
		if err := reconcile.Start(); err != nil {
			logger.Error("对账任务启动失败", zap.Error(err))
			return
		}
		<-ctx.Done()
		reconcile.Stop()
	})

	// 11. HTTP Router 与 gRPC Server
	r := server.NewHTTPRouter(svc, verifier)
	grpcServer := server.NewGRPCServer(svc)

	app, err := server.New(server.Config{
		HttpPort: cfg.App.HttpPort,
		GrpcPort: cfg.App.GrpcPort,
	}, r, grpcServer, workers...)
	if err != nil {
		logger.Fatal("应用启动失败", zap.Error(err))
	}

	logger.Info("Gas Station 中继服务启动",
		zap.String("station", executor.Station().Hex()),
		zap.String("chain_id", executor.ChainID().String()),
	)
	// 运行 (阻塞)
	app.Run()

	// 12. 退出后资源清理
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	logger.Info("系统已退出")
}

func newAllocator(cfg config.NonceConfig, rdb *redis.Client) nonce.Allocator {
	base := cfg.Base
	if base == 0 {
		b, err := safe_random.GenerateNonceBase()
		if err != nil {
			logger.Fatal("生成 Nonce 起点失败", zap.Error(err))
		}
		base = b
	}
	if cfg.Backend == "redis" {
		if base > nonce.MaxRedisBase {
			logger.Fatal("nonce.base 超出 Redis 整数范围", zap.Uint64("base", base))
		}
		logger.Info("Nonce 分配器: Redis", zap.Uint64("base", base))
		return nonce.NewRedisAllocator(rdb, base)
	}
	logger.Info("Nonce 分配器: 内存 (仅单实例)", zap.Uint64("base", base))
	return nonce.NewMemoryAllocator(base)
}

func newMQ(cfg config.Config, rdb *redis.Client) (mq.Producer, mq.Consumer) {
	// 每个实例一个消费者组，保证所有实例都能收到登记事件
	suffix, err := safe_random.GenerateRandomHexString(8)
	if err != nil {
		suffix = "default"
	}
	group := "station_registry_sync_" + suffix

	if cfg.Redis.MQType == "kafka" {
		logger.Info("使用 Kafka 作为消息队列", zap.Strings("brokers", cfg.Kafka.Brokers))
		return mq.NewKafkaProducer(cfg.Kafka.Brokers), mq.NewKafkaConsumer(cfg.Kafka.Brokers, group)
	}
	logger.Info("使用 Redis Streams 作为消息队列")
	return mq.NewRedisProducer(rdb), mq.NewRedisConsumer(rdb, group, "sync-0")
}
