package utils

import "github.com/mr-tron/base58"

// PartitionHashBytes 从任意 byte slice 中选取 4 字节构造 uint32 并模 mod，用于分区选择。
// 非加密哈希，仅适合负载均匀场景。长度不足 28 字节时退化为逐字节累加。
func PartitionHashBytes(b []byte, mod uint32) uint32 {
	if mod <= 1 || len(b) == 0 {
		return 0
	}
	if len(b) < 28 {
		var h uint32
		for _, c := range b {
			h = h*31 + uint32(c)
		}
		return h % mod
	}
	switch mod {
	case 2, 4, 8, 16:
		return uint32(b[27]) & (mod - 1) // 快速路径：低位掩码替代 hash + %
	}

	// fallback 路径：组合多个字节避免 hash 冲突
	hash := uint32(b[7])<<24 | uint32(b[15])<<16 | uint32(b[19])<<8 | uint32(b[27])
	return hash % mod
}

// PartitionBySignature 按交易签名（base58）选择分区，同一笔交易的记录总落在同一分区。
// 非法 base58 时按原始字符串字节计算。
func PartitionBySignature(sig string, partitions int) int32 {
	if partitions <= 1 {
		return 0
	}
	raw, err := base58.Decode(sig)
	if err != nil || len(raw) == 0 {
		raw = []byte(sig)
	}
	return int32(PartitionHashBytes(raw, uint32(partitions)))
}

// CalcCapPerPartition 根据总量和分区数，计算每个分区的预估初始容量，带一定冗余。
// 保底值由 minCap 保证，通常用于避免每个 bucket 初始容量太小。
func CalcCapPerPartition(total, partitions, minCap int) int {
	if partitions <= 1 {
		return max(total, minCap)
	}
	if partitions < 5 {
		return max(total/2, minCap)
	}
	return max(total*3/partitions, minCap)
}
