package txadapter

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/Syoongy/sniffer/internal/logic/core"
	"github.com/Syoongy/sniffer/pkg/logger"
)

// EffectiveKeys 构造交易完整账户空间：静态账户 + ALT writable + ALT readonly。
//
// 交易带 address table lookups 且调用方提供了表内容时，直接交给 solana-go 解析；
// 未提供或解析失败时，回退为 static ++ meta.loadedAddresses.writable ++ meta.loadedAddresses.readonly。
func EffectiveKeys(tx *core.RawTransaction) []string {
	msg := &tx.Transaction.Message

	var loaded *core.LoadedAddresses
	if tx.Meta != nil {
		loaded = tx.Meta.LoadedAddresses
	}
	if len(msg.AddressTableLookups) == 0 || len(tx.AddressTables) == 0 {
		return composeKeys(msg.AccountKeys, loaded)
	}

	keys, err := resolveLookups(msg, tx.AddressTables)
	if err != nil {
		logger.Warnf("[txadapter::EffectiveKeys] resolve lookups failed, fallback to loadedAddresses: %v", err)
		return composeKeys(msg.AccountKeys, loaded)
	}
	return keys
}

// composeKeys 一次性分配，顺序拼接
func composeKeys(static []string, loaded *core.LoadedAddresses) []string {
	total := len(static)
	if loaded != nil {
		total += len(loaded.Writable) + len(loaded.Readonly)
	}
	keys := make([]string, 0, total)
	keys = append(keys, static...)
	if loaded != nil {
		keys = append(keys, loaded.Writable...)
		keys = append(keys, loaded.Readonly...)
	}
	return keys
}

func resolveLookups(msg *core.Message, tables map[string][]string) (_ []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolve lookups panic: %v", r)
		}
	}()

	static, err := toPublicKeys(msg.AccountKeys)
	if err != nil {
		return nil, fmt.Errorf("static keys: %w", err)
	}

	lookups := make([]solana.MessageAddressTableLookup, 0, len(msg.AddressTableLookups))
	for _, l := range msg.AddressTableLookups {
		table, err := solana.PublicKeyFromBase58(l.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("lookup table key %s: %w", l.AccountKey, err)
		}
		writable, err := toIndexes(l.WritableIndexes)
		if err != nil {
			return nil, err
		}
		readonly, err := toIndexes(l.ReadonlyIndexes)
		if err != nil {
			return nil, err
		}
		lookups = append(lookups, solana.MessageAddressTableLookup{
			AccountKey:      table,
			WritableIndexes: writable,
			ReadonlyIndexes: readonly,
		})
	}

	resolved := make(map[solana.PublicKey]solana.PublicKeySlice, len(tables))
	for addr, entries := range tables {
		table, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return nil, fmt.Errorf("lookup table key %s: %w", addr, err)
		}
		keys, err := toPublicKeys(entries)
		if err != nil {
			return nil, fmt.Errorf("lookup table %s: %w", addr, err)
		}
		resolved[table] = keys
	}

	m := solana.Message{AccountKeys: static}
	m.SetAddressTableLookups(lookups)
	if err := m.SetAddressTables(resolved); err != nil {
		return nil, fmt.Errorf("set address tables: %w", err)
	}
	if err := m.ResolveLookups(); err != nil {
		return nil, fmt.Errorf("resolve lookups: %w", err)
	}

	out := make([]string, len(m.AccountKeys))
	for i, k := range m.AccountKeys {
		out[i] = k.String()
	}
	return out, nil
}

func toPublicKeys(keys []string) (solana.PublicKeySlice, error) {
	out := make(solana.PublicKeySlice, len(keys))
	for i, k := range keys {
		pk, err := solana.PublicKeyFromBase58(k)
		if err != nil {
			return nil, fmt.Errorf("invalid pubkey %q at %d: %w", k, i, err)
		}
		out[i] = pk
	}
	return out, nil
}

func toIndexes(idx []uint16) ([]uint8, error) {
	out := make([]uint8, len(idx))
	for i, v := range idx {
		if v > 255 {
			return nil, fmt.Errorf("lookup index %d out of range", v)
		}
		out[i] = uint8(v)
	}
	return out, nil
}
