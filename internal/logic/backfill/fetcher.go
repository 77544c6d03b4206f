package backfill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Syoongy/sniffer/internal/consts"
	"github.com/Syoongy/sniffer/internal/logic/core"
	"github.com/Syoongy/sniffer/internal/logic/txadapter"
	"github.com/Syoongy/sniffer/internal/types"
	"github.com/Syoongy/sniffer/pkg/logger"
	"github.com/blocto/solana-go-sdk/rpc"
)

// SignatureInfo getSignaturesForAddress 返回的单条记录
type SignatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Err       any    `json:"err"`
}

// Fetcher 历史交易数据源
type Fetcher interface {
	// SignaturesForAddress 按时间倒序返回 before 之前的签名，before 为空时从最新开始
	SignaturesForAddress(ctx context.Context, address, before string, limit int) ([]SignatureInfo, error)
	// Transaction 节点尚未返回交易时结果为 nil, nil
	Transaction(ctx context.Context, signature string) (*core.RawTransaction, error)
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// 交易编码
const (
	EncodingJson   = "json"
	EncodingBase64 = "base64"
)

// wireTx getTransaction(encoding=base64) 的返回结构
type wireTx struct {
	Slot        uint64                `json:"slot"`
	BlockTime   *int64                `json:"blockTime"`
	Transaction []string              `json:"transaction"` // [data, "base64"]
	Meta        *core.TransactionMeta `json:"meta"`
}

// RpcFetcher 基于 JSON-RPC 的 Fetcher
type RpcFetcher struct {
	client   rpc.RpcClient
	encoding string
}

// NewRpcFetcher encoding 为空时使用 json
func NewRpcFetcher(endpoint, encoding string) *RpcFetcher {
	if encoding != EncodingBase64 {
		encoding = EncodingJson
	}
	return &RpcFetcher{client: rpc.NewRpcClient(endpoint), encoding: encoding}
}

func (f *RpcFetcher) call(ctx context.Context, out any, method string, params ...any) error {
	args := append([]any{method}, params...)
	body, err := f.client.Call(ctx, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	var env rpcEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if env.Error != nil {
		return fmt.Errorf("%s: %w", method, env.Error)
	}
	if len(env.Result) == 0 || bytes.Equal(env.Result, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

func (f *RpcFetcher) SignaturesForAddress(ctx context.Context, address, before string, limit int) ([]SignatureInfo, error) {
	cfg := map[string]any{
		"limit":      limit,
		"commitment": "confirmed",
	}
	if before != "" {
		cfg["before"] = before
	}
	var raw []SignatureInfo
	if err := f.call(ctx, &raw, "getSignaturesForAddress", address, cfg); err != nil {
		return nil, err
	}
	out := raw[:0]
	for _, info := range raw {
		if _, err := types.SignatureFromBase58(info.Signature); err != nil {
			logger.Warnf("[backfill::SignaturesForAddress] skip slot=%d: %v", info.Slot, err)
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func (f *RpcFetcher) Transaction(ctx context.Context, signature string) (*core.RawTransaction, error) {
	cfg := map[string]any{
		"encoding":                       f.encoding,
		"commitment":                     "confirmed",
		"maxSupportedTransactionVersion": consts.MaxSupportedTransactionVersion,
	}
	if f.encoding == EncodingBase64 {
		var w *wireTx
		if err := f.call(ctx, &w, "getTransaction", signature, cfg); err != nil {
			return nil, err
		}
		if w == nil {
			return nil, nil
		}
		if len(w.Transaction) == 0 {
			return nil, fmt.Errorf("getTransaction %s: empty base64 payload", signature)
		}
		return txadapter.FromWire(w.Transaction[0], w.Meta, w.Slot, w.BlockTime)
	}

	var tx *core.RawTransaction
	if err := f.call(ctx, &tx, "getTransaction", signature, cfg); err != nil {
		return nil, err
	}
	return tx, nil
}
