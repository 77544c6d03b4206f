package progress

import "github.com/Syoongy/sniffer/internal/logic/processor"

// SigStatus 表示交易签名的处理状态（统一 Redis 与 DB 编码）
type SigStatus int

const (
	SigUnknown   SigStatus = 0 // Redis 不存在
	SigProcessed SigStatus = 1 // 已解码并投递
	SigInvalid   SigStatus = 2 // 交易结构非法，跳过
	SigPending   SigStatus = 3 // 处理中（仅 Redis 用）
)

// Source 表示记录来源模块（grpc、rpc）
const (
	SourceUnknown int16 = 0
	SourceGrpc    int16 = 1
	SourceRpc     int16 = 2
)

func SourceName(src int16) string {
	switch src {
	case SourceGrpc:
		return "grpc"
	case SourceRpc:
		return "rpc"
	default:
		return "unknown"
	}
}

// SignatureRecord 表示一条待写入 DB 的签名记录
type SignatureRecord struct {
	Signature string    // 交易签名（base58）
	Slot      uint64    // Solana slot
	Source    int16     // 来源：1=grpc, 2=rpc
	BlockTime int64     // Unix timestamp（秒）
	Status    SigStatus // 处理状态：1=已处理，2=无效
}

// RecordsFromBatch 由批次结果生成签名记录：交易本身非法的标记为 SigInvalid，
// 未取得签名（无签名、ctx 取消）的跳过
func RecordsFromBatch(batch *processor.BatchResult, source int16) []*SignatureRecord {
	records := make([]*SignatureRecord, 0, len(batch.Txs))
	for _, tx := range batch.Txs {
		if tx.TxHash == "" {
			continue
		}
		status := SigProcessed
		if tx.Err != nil {
			status = SigInvalid
		}
		records = append(records, &SignatureRecord{
			Signature: tx.TxHash,
			Slot:      tx.Slot,
			Source:    source,
			BlockTime: tx.BlockTime,
			Status:    status,
		})
	}
	return records
}
