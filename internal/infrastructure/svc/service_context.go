package svc

import (
	"context"
	"fmt"
	"os"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"mktstream/internal/application/port"
	"mktstream/internal/application/realtime"
	"mktstream/internal/application/service"
	"mktstream/internal/application/usecase/monitor"
	"mktstream/internal/infrastructure/cache"
	"mktstream/internal/infrastructure/config"
	"mktstream/internal/infrastructure/socketcluster"
	"mktstream/internal/infrastructure/storage"
	"mktstream/internal/infrastructure/storage/composite"
	pgrepo "mktstream/internal/infrastructure/storage/postgres"
	redisrepo "mktstream/internal/infrastructure/storage/redis"
	sqliterepo "mktstream/internal/infrastructure/storage/sqlite"
	"mktstream/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 存储层（第一层初始化）
	repos      []port.Repository
	redisRepo  *redisrepo.Repo
	sqliteRepo *sqliterepo.Repo
	pgRepo     *pgrepo.Repo
	memoryRepo *storage.Memory

	// 行情链路
	Recorder  *service.Recorder
	Cache     *cache.Store
	Transport *socketcluster.Client
	Manager   *realtime.ConnectionManager
	Registry  *realtime.Registry
	Facade    *realtime.Facade

	// 输出端口
	Sink port.Sink

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成；不会发起连接
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	if !cfg.HasSubscriptions() {
		return nil, ErrNoSubscriptions
	}

	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		closerChain: make([]func() error, 0),
	}
	if cfg.App.PlainOutput {
		sc.Sink = console.NewPlainSink(os.Stdout)
	} else {
		sc.Sink = console.NewSink()
	}

	// 初始化所有组件，按依赖顺序
	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 初始化所有应用组件
// 关闭顺序与初始化顺序相反：连接管理 -> 注册表 -> 连接 -> 录制 -> 存储
func (sc *ServiceContext) initializeComponents() error {
	// 0. 存储层
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageInitFailed, err)
	}

	// 1. 录制器，写入所有已启用的存储
	repo := composite.New(sc.repos...)
	sc.Recorder = service.NewRecorder(repo, service.RecorderConfig{
		BufferSize:     sc.Config.Recorder.BufferSize,
		RecordMessages: sc.Config.Recorder.RecordMessages,
		RecordLatest:   sc.Config.Recorder.RecordLatest,
		WriteTimeout:   sc.Config.RecorderWriteTimeout(),
		Retention:      sc.Config.RecorderRetention(),
		PruneEvery:     sc.Config.RecorderPruneEvery(),
	})
	// 退出信号不打断录制，Stop 时写完队列
	sc.Recorder.Start(context.WithoutCancel(sc.Ctx))
	sc.closerChain = append(sc.closerChain, func() error {
		sc.Recorder.Stop()
		return nil
	})

	// 2. 缓存，写入后镜像到录制器
	sc.Cache = cache.NewStore(cache.WithMirror(sc.Recorder.Mirror))

	// 3. 行情连接
	sc.Transport = socketcluster.New(socketcluster.Options{
		Host:             sc.Config.Feed.Host,
		Port:             sc.Config.Feed.Port,
		Path:             sc.Config.Feed.Path,
		Secure:           sc.Config.Feed.Secure,
		APIKey:           sc.Config.Feed.APIKey,
		AckTimeout:       sc.Config.AckTimeout(),
		HandshakeTimeout: sc.Config.HandshakeTimeout(),
		PingTimeout:      sc.Config.PingTimeout(),
	})
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing feed connection")
		return sc.Transport.Close()
	})

	// 4. 连接管理 + 频道注册表 + 订阅门面
	sc.Manager = realtime.NewConnectionManager(sc.Transport, realtime.RetryPolicy{
		InitialDelay: sc.Config.RetryInitialDelay(),
		MaxDelay:     sc.Config.RetryMaxDelay(),
	})
	sc.Registry = realtime.NewRegistry(sc.Transport, sc.Manager, realtime.WithTap(sc.Recorder.Tap))
	sc.closerChain = append(sc.closerChain, func() error {
		sc.Registry.Close()
		return nil
	})
	sc.Manager.OnConnected(sc.Registry.Reconcile)
	sc.Manager.OnDisconnected(sc.Registry.Invalidate)
	sc.Facade = realtime.NewFacade(sc.Registry, sc.Cache)

	sc.Manager.Start(sc.Ctx)
	sc.closerChain = append(sc.closerChain, func() error {
		sc.Manager.Stop()
		return nil
	})

	log.Info().
		Int("stores", repo.Len()).
		Str("host", sc.Config.Feed.Host).
		Msg("✓ All components initialized")
	return nil
}

// initializeStorage 初始化存储层 (Redis / SQLite / Postgres)，都未启用时使用内存存储
func (sc *ServiceContext) initializeStorage() error {
	// Redis 初始化
	if sc.Config.Storage.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
	}

	// SQLite 初始化
	if sc.Config.Storage.SQLite.Enabled {
		if err := sc.initSQLite(); err != nil {
			return fmt.Errorf("sqlite initialization failed: %w", err)
		}
	}

	// Postgres 初始化
	if sc.Config.Storage.Postgres.Enabled {
		if err := sc.initPostgres(); err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
	}

	if len(sc.repos) == 0 {
		sc.memoryRepo = storage.NewMemory(sc.Config.Recorder.MemoryLimit)
		sc.repos = append(sc.repos, sc.memoryRepo)
		log.Info().Int("limit", sc.Config.Recorder.MemoryLimit).Msg("no external storage enabled, recording in memory")
	}
	return nil
}

// initRedis 初始化 Redis 连接
func (sc *ServiceContext) initRedis() error {
	cfg := sc.Config.Storage.Redis
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	sc.redisRepo = redisrepo.New(rdb, redisrepo.Options{
		Prefix:     cfg.Prefix,
		TTL:        time.Duration(cfg.TTLSeconds) * time.Second,
		Stream:     cfg.Stream,
		StreamLen:  cfg.StreamLen,
		PubChannel: cfg.PubChannel,
	})
	sc.repos = append(sc.repos, sc.redisRepo)

	// 注册关闭回调
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return sc.redisRepo.Close()
	})

	log.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("✓ Redis initialized")

	return nil
}

// initSQLite 初始化 SQLite 数据库
func (sc *ServiceContext) initSQLite() error {
	repo, err := sqliterepo.New(sc.Config.Storage.SQLite.Path)
	if err != nil {
		return fmt.Errorf("sqlite repo creation failed: %w", err)
	}

	sc.sqliteRepo = repo
	sc.repos = append(sc.repos, repo)

	// 注册关闭回调
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", sc.Config.Storage.SQLite.Path).
		Msg("✓ SQLite initialized")

	return nil
}

// initPostgres 初始化 Postgres 数据库
func (sc *ServiceContext) initPostgres() error {
	repo, err := pgrepo.New(sc.Config.Storage.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres repo creation failed: %w", err)
	}

	sc.pgRepo = repo
	sc.repos = append(sc.repos, repo)

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("✓ Postgres initialized")
	return nil
}

// Connect 发起连接；ReadyTimeout > 0 时等待首次连接成功
func (sc *ServiceContext) Connect(ctx context.Context) error {
	sc.Manager.Connect()

	timeout := sc.Config.ReadyTimeout()
	if timeout <= 0 {
		return nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-sc.Manager.Ready():
		return nil
	case <-t.C:
		return fmt.Errorf("%w after %s", ErrFeedNotReady, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubscribeConfigured 按配置订阅所有频道，返回的 Lease 释放全部订阅
func (sc *ServiceContext) SubscribeConfigured() *realtime.Lease {
	subs := sc.Config.Subscriptions
	var leases []*realtime.Lease

	if subs.MarketStatus {
		leases = append(leases, sc.Facade.WatchMarketStatus())
	}
	for _, m := range sc.Config.NoticeMarkets() {
		leases = append(leases, sc.Facade.WatchNotice(m))
	}
	for _, m := range sc.Config.AdvertiseMarkets() {
		leases = append(leases, sc.Facade.WatchAdvertise(m))
	}
	if len(subs.Symbols) > 0 {
		leases = append(leases, sc.Facade.WatchSymbols(realtime.SymbolRequest{
			Symbols: subs.Symbols,
			Types:   sc.Config.DataKinds(),
		}))
	}

	log.Info().
		Strs("channels", sc.Registry.Channels()).
		Msg("subscriptions registered")
	return realtime.JoinLeases(leases...)
}

// BuildMonitorServiceDeps 构建终端看板所需的依赖
func (sc *ServiceContext) BuildMonitorServiceDeps() monitor.ServiceDeps {
	return monitor.ServiceDeps{
		Symbols:     sc.Config.Subscriptions.Symbols,
		Cache:       sc.Cache,
		Status:      sc.Status,
		Sink:        sc.Sink,
		ReportEvery: time.Duration(sc.Config.App.ReportEverySec) * time.Second,
	}
}

// Status 当前连接与录制概况
func (sc *ServiceContext) Status() monitor.Status {
	written, dropped, _ := sc.Recorder.Stats()
	return monitor.Status{
		State:    sc.Manager.State().String(),
		Channels: len(sc.Registry.Channels()),
		Written:  written,
		Dropped:  dropped,
	}
}

// MemoryRepo 未配置外部存储时的内存存储，否则为 nil
func (sc *ServiceContext) MemoryRepo() *storage.Memory {
	return sc.memoryRepo
}

// Close 关闭 ServiceContext 中的所有资源
// 按照相反的顺序关闭所有资源，应该在应用退出时调用
func (sc *ServiceContext) Close() error {
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}
