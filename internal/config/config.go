package config

import (
	"fmt"
	"os"

	"github.com/Syoongy/sniffer/internal/mq"
	"github.com/Syoongy/sniffer/pkg/logger"
	"github.com/zeromicro/go-zero/core/logx"
	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Format   string `yaml:"format"`   // 日志格式，支持 "console" 或 "json"
	LogDir   string `yaml:"log_dir"`  // 日志目录（可为相对路径或绝对路径）
	Level    string `yaml:"level"`    // 日志级别：debug / info / warn / error
	Compress bool   `yaml:"compress"` // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// ToLogxConf 将同一份日志配置映射到 go-zero logx
func (c *LogConfig) ToLogxConf() logx.LogConf {
	lc := logx.LogConf{
		Encoding: "plain",
		Level:    c.Level,
		Compress: c.Compress,
		Mode:     "console",
	}
	if c.Format == "json" {
		lc.Encoding = "json"
	}
	if lc.Level == "" {
		lc.Level = "info"
	}
	if lc.Level == "warn" {
		lc.Level = "error"
	}
	if c.LogDir != "" {
		lc.Mode = "file"
		lc.Path = c.LogDir
	}
	return lc
}

// ProgramConfig 表示一个被追踪的 Anchor 程序
type ProgramConfig struct {
	ID      string `yaml:"id"`       // 程序地址（base58）
	IdlPath string `yaml:"idl_path"` // IDL JSON 文件路径
}

// DecoderConfig 表示解码流水线配置
type DecoderConfig struct {
	Programs       []ProgramConfig `yaml:"programs"`        // 被追踪的程序列表，至少一个
	InnerWhitelist []string        `yaml:"inner_whitelist"` // 需要保留的 inner instruction 程序
	IgnoreList     []string        `yaml:"ignore_list"`     // 累加器忽略的指令名
	Workers        int             `yaml:"workers"`         // 并发解码的 worker 数，<=0 时取默认值
}

// KafkaProducerConfig 表示 Kafka 生产者相关配置
type KafkaProducerConfig struct {
	Brokers   string `yaml:"brokers"`    // Kafka broker 地址，多个用英文逗号分隔
	BatchSize int    `yaml:"batch_size"` // 批处理大小（单位字节）
	LingerMs  int    `yaml:"linger_ms"`  // 批处理最大延迟（毫秒）

	Topics struct {
		Instruction string `yaml:"instruction"` // 解码后指令的 Kafka topic
		Event       string `yaml:"event"`       // 解码后事件的 Kafka topic
	} `yaml:"topics"`

	Partitions struct {
		Instruction int `yaml:"instruction"` // instruction topic 的分区数
		Event       int `yaml:"event"`       // event topic 的分区数
	} `yaml:"partitions"`
}

func (c *KafkaProducerConfig) ToKafkaOption() mq.KafkaProducerOption {
	return mq.KafkaProducerOption{
		Brokers:   c.Brokers,
		BatchSize: c.BatchSize,
		LingerMs:  c.LingerMs,
		Topics: []mq.TopicOption{
			{Topic: c.Topics.Instruction, Partitions: c.Partitions.Instruction},
			{Topic: c.Topics.Event, Partitions: c.Partitions.Event},
		},
	}
}

// RpcConfig 表示 JSON-RPC 回填配置
type RpcConfig struct {
	Endpoint        string `yaml:"endpoint"`          // RPC 节点地址
	Encoding        string `yaml:"encoding"`          // getTransaction 编码：json（默认）或 base64
	PageLimit       int    `yaml:"page_limit"`        // getSignaturesForAddress 每页数量
	FetchRetries    int    `yaml:"fetch_retries"`     // getTransaction 返回 null 时的重试次数
	RetryBackoffMs  int    `yaml:"retry_backoff_ms"`  // 重试间隔（毫秒）
	MaxPages        int    `yaml:"max_pages"`         // 最多回填的页数，0 表示不限
	StartBefore     string `yaml:"start_before"`      // 起始游标，为空时从 Redis 读取
	ResumeFromStore bool   `yaml:"resume_from_store"` // 是否从进度存储恢复游标
}

// TimeConfig 表示各种超时配置（单位：毫秒）
type TimeConfig struct {
	BatchDispatchTimeoutMs int `yaml:"batch_dispatch_timeout_ms"` // 每批交易的处理最大耗时（Kafka + Redis + DB）
	EventSendTimeoutMs     int `yaml:"event_send_timeout_ms"`     // 单条消息发送到 Kafka 并等待 ack 的超时时间
}

// MetricsConfig 表示 prometheus 暴露配置
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"` // 为空时不启动 metrics server
}

// GrpcConfig 表示 yellowstone gRPC 客户端连接相关配置
type GrpcConfig struct {
	Endpoint string `yaml:"endpoint"` // gRPC 服务端地址
	XToken   string `yaml:"x_token"`  // x-token 认证

	// 订阅过滤
	IncludeFailed bool `yaml:"include_failed"` // 是否订阅失败交易（失败交易也会解码，Err=true）

	// 应用级逻辑心跳（ping）配置
	StreamPingIntervalSec int `yaml:"stream_ping_interval_sec"` // 应用层 ping 心跳间隔（秒）

	// gRPC Keepalive 底层连接检测配置
	KeepalivePingIntervalSec int `yaml:"keepalive_ping_interval_sec"` // 底层 keepalive 间隔（秒）
	KeepalivePingTimeoutSec  int `yaml:"keepalive_ping_timeout_sec"`  // 底层 keepalive 超时（秒）

	// gRPC 窗口大小调优（用于大数据流推送）
	InitialWindowSize     int `yaml:"initial_window_size"`      // 单流窗口大小（字节）
	InitialConnWindowSize int `yaml:"initial_conn_window_size"` // 整体连接窗口大小（字节）

	// 消息体大小限制
	MaxCallSendMsgSize int `yaml:"max_call_send_msg_size"` // 单条消息最大发送字节数
	MaxCallRecvMsgSize int `yaml:"max_call_recv_msg_size"` // 单条消息最大接收字节数

	// 超时与重连策略
	ReconnectIntervalSec int `yaml:"reconnect_interval_sec"` // 重连最小间隔（秒）
	ConnectTimeoutSec    int `yaml:"connect_timeout_sec"`    // 连接建立超时（秒）
	SendTimeoutSec       int `yaml:"send_timeout_sec"`       // 发送超时（秒）
	RecvTimeoutSec       int `yaml:"recv_timeout_sec"`       // 接收超时（秒）
	BatchSize            int `yaml:"batch_size"`             // 攒批交易数，达到即处理
	BatchFlushMs         int `yaml:"batch_flush_ms"`         // 攒批最大等待（毫秒）
}

// Config 是主配置结构体，grpc 与 backfill 两个服务共用
type Config struct {
	LogConf           LogConfig           `yaml:"logger"`         // 日志配置
	DecoderConf       DecoderConfig       `yaml:"decoder"`        // 解码配置
	KafkaProducerConf KafkaProducerConfig `yaml:"kafka_producer"` // Kafka 生产者配置
	TimeConf          TimeConfig          `yaml:"time_conf"`      // 时间相关配置
	MetricsConf       MetricsConfig       `yaml:"metrics"`        // 指标配置
	Rpc               RpcConfig           `yaml:"rpc"`            // 回填 RPC 配置
	Grpc              GrpcConfig          `yaml:"grpc"`           // gRPC 订阅配置

	RedisAddr    string `yaml:"redis_addr"`  // Redis 地址
	SqlitePath   string `yaml:"sqlite_path"` // 进度落库 sqlite 文件路径
	ProgressConf struct {
		SignatureTTLHours int `yaml:"signature_ttl_hours"` // 已处理签名在 Redis 中的保留时长（小时）
		FlushIntervalSec  int `yaml:"flush_interval_sec"`  // 缓冲写入 sqlite 的间隔（秒）
	} `yaml:"progress"` // 表示索引器中的进度管理配置
}

// Load 读取 YAML 配置文件
func Load(path string) (Config, error) {
	var c Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// MustLoad 读取配置，失败直接退出进程
func MustLoad(path string) Config {
	c, err := Load(path)
	logx.Must(err)
	return c
}

// Validate 校验必填项
func (c *Config) Validate() error {
	if len(c.DecoderConf.Programs) == 0 {
		return fmt.Errorf("config: decoder.programs is empty")
	}
	seen := make(map[string]struct{}, len(c.DecoderConf.Programs))
	for i, p := range c.DecoderConf.Programs {
		if p.ID == "" || p.IdlPath == "" {
			return fmt.Errorf("config: decoder.programs[%d] requires id and idl_path", i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("config: duplicate program %s", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// ProgramIDs 返回被追踪程序地址，顺序与配置一致
func (c *Config) ProgramIDs() []string {
	ids := make([]string, 0, len(c.DecoderConf.Programs))
	for _, p := range c.DecoderConf.Programs {
		ids = append(ids, p.ID)
	}
	return ids
}
