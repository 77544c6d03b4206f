package svc

import (
	"context"
	"fmt"
	"time"

	"github.com/Syoongy/sniffer/internal/config"
	"github.com/Syoongy/sniffer/internal/logic/dispatcher"
	"github.com/Syoongy/sniffer/internal/logic/processor"
	"github.com/Syoongy/sniffer/internal/logic/progress"
	"github.com/Syoongy/sniffer/internal/metrics"
	"github.com/Syoongy/sniffer/internal/mq"
	"github.com/Syoongy/sniffer/pkg/logger"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/redis/go-redis/v9"
)

// ServiceContext 包含 grpc / backfill 服务共用的资源
type ServiceContext struct {
	Config          config.Config
	Metrics         *metrics.Metrics
	Processor       *processor.Processor
	Accumulator     *processor.Accumulator
	Producer        *kafka.Producer
	Dispatcher      *dispatcher.Dispatcher
	Redis           *redis.Client
	DB              *progress.DBProgressStore
	ProgressManager *progress.ProgressManager
}

// BuildRegistry 按配置加载并编译所有程序的 IDL，任一失败即返回错误
func BuildRegistry(c config.Config) (*processor.Registry, error) {
	programs := make([]*processor.Program, 0, len(c.DecoderConf.Programs))
	for _, pc := range c.DecoderConf.Programs {
		p, err := processor.LoadProgram(pc.ID, pc.IdlPath)
		if err != nil {
			return nil, err
		}
		programs = append(programs, p)
	}
	return processor.NewRegistry(c.DecoderConf.InnerWhitelist, programs...)
}

// NewServiceContext 创建服务上下文
func NewServiceContext(c config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{Config: c, Metrics: metrics.Init()}

	// 1. 编译 IDL
	reg, err := BuildRegistry(c)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	sc.Processor = processor.NewProcessor(reg, c.DecoderConf.Workers, sc.Metrics)
	sc.Accumulator = processor.NewAccumulator(c.DecoderConf.IgnoreList)

	// 2. 初始化 Kafka 生产者
	producer, err := mq.NewKafkaProducer(c.KafkaProducerConf.ToKafkaOption())
	if err != nil {
		logger.Errorf("[svc::NewServiceContext] Kafka producer 初始化失败: %v", err)
		return nil, err
	}
	sc.Producer = producer
	sc.Dispatcher = dispatcher.NewDispatcher(producer, c.KafkaProducerConf, c.TimeConf.EventSendTimeoutMs, sc.Metrics)

	// 3. 初始化 Redis 客户端（签名状态缓存）
	var cache progress.StatusCache
	if c.RedisAddr != "" {
		sc.Redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := sc.Redis.Ping(ctx).Err()
		cancel()
		if err != nil {
			sc.Close()
			return nil, fmt.Errorf("redis ping %s: %w", c.RedisAddr, err)
		}
		ttl := time.Duration(c.ProgressConf.SignatureTTLHours) * time.Hour
		cache = progress.NewRedisProgressStore(sc.Redis, ttl)
	}

	// 4. 初始化 sqlite（进度落库）
	if c.SqlitePath != "" {
		db, err := progress.OpenSqlite(context.Background(), c.SqlitePath)
		if err != nil {
			sc.Close()
			return nil, err
		}
		sc.DB = db
	}

	// 5. 进度管理器（Redis + DB + 缓冲）
	sc.ProgressManager = progress.NewProgressManager(cache, sc.DB)

	logger.Infof("[svc::NewServiceContext] 服务上下文初始化完成, programs=%v", reg.IDs())
	return sc, nil
}

// Close 关闭服务上下文中的资源
func (sc *ServiceContext) Close() {
	if sc.ProgressManager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := sc.ProgressManager.Flush(ctx); err != nil {
			logger.Errorf("[svc::Close] progress flush failed: %v", err)
		}
		cancel()
	}
	if sc.Producer != nil {
		sc.Producer.Flush(5000)
		sc.Producer.Close()
	}
	if sc.Redis != nil {
		_ = sc.Redis.Close()
	}
	if sc.DB != nil {
		_ = sc.DB.Close()
	}
}
