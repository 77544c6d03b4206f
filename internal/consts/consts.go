package consts

import "runtime"

// CpuCount 表示逻辑 CPU 核心数，用于控制并发任务调度上限
var CpuCount = runtime.NumCPU()

const (
	// MaxSupportedTransactionVersion getTransaction 支持的最高交易版本
	MaxSupportedTransactionVersion = 0

	// DefaultSignaturePageLimit getSignaturesForAddress 单页上限（RPC 最大 1000）
	DefaultSignaturePageLimit = 500

	// DefaultFetchRetries getTransaction 返回 null 时的重试次数
	DefaultFetchRetries = 5
)
