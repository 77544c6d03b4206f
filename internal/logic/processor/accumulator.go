package processor

import "sort"

// Accumulator 按指令名累计出现过该指令的交易哈希（去重、按发现顺序）。
// 由调用方持有并在批次间传递，不是进程级全局状态；非并发安全。
type Accumulator struct {
	ignore map[string]struct{}
	byName map[string][]string
	seen   map[string]map[string]struct{}
	txs    int
}

func NewAccumulator(ignore []string) *Accumulator {
	a := &Accumulator{
		ignore: make(map[string]struct{}, len(ignore)),
		byName: make(map[string][]string),
		seen:   make(map[string]map[string]struct{}),
	}
	for _, name := range ignore {
		a.ignore[name] = struct{}{}
	}
	return a
}

// Add 合并一批结果，返回自身便于链式调用
func (a *Accumulator) Add(batch *BatchResult) *Accumulator {
	for _, tx := range batch.Txs {
		if tx.Err != nil {
			continue
		}
		a.txs++
		for _, ix := range tx.Instructions {
			a.record(ix.Name, tx.TxHash)
		}
	}
	return a
}

func (a *Accumulator) record(name, txHash string) {
	if _, ok := a.ignore[name]; ok {
		return
	}
	hashes, ok := a.seen[name]
	if !ok {
		hashes = make(map[string]struct{})
		a.seen[name] = hashes
	}
	if _, ok := hashes[txHash]; ok {
		return
	}
	hashes[txHash] = struct{}{}
	a.byName[name] = append(a.byName[name], txHash)
}

// Hashes 指定指令名的交易哈希
func (a *Accumulator) Hashes(name string) []string {
	return a.byName[name]
}

// Names 已记录的指令名（字典序）
func (a *Accumulator) Names() []string {
	names := make([]string, 0, len(a.byName))
	for name := range a.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot 拷贝当前累计结果
func (a *Accumulator) Snapshot() map[string][]string {
	out := make(map[string][]string, len(a.byName))
	for name, hashes := range a.byName {
		out[name] = append([]string(nil), hashes...)
	}
	return out
}

// Transactions 已合并的合法交易数
func (a *Accumulator) Transactions() int {
	return a.txs
}
