package backfill

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/near/borsh-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syoongy/sniffer/internal/logic/core"
	"github.com/Syoongy/sniffer/internal/logic/discriminator"
	"github.com/Syoongy/sniffer/internal/logic/processor"
	"github.com/Syoongy/sniffer/internal/logic/progress"
)

const whirlpool = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"

type swapArgs struct {
	Amount                 uint64
	OtherAmountThreshold   uint64
	SqrtPriceLimit         [16]byte
	AmountSpecifiedIsInput uint8
	AToB                   uint8
}

func testKey(n byte) string {
	var b [32]byte
	b[0] = n
	b[31] = 0x33
	return base58.Encode(b[:])
}

func swapTx(t *testing.T, sig string) *core.RawTransaction {
	t.Helper()
	payload, err := borsh.Serialize(swapArgs{Amount: 42})
	require.NoError(t, err)
	d := discriminator.Sighash(discriminator.NamespaceGlobal, "swap")
	return &core.RawTransaction{
		Slot: 7,
		Transaction: core.TransactionBody{
			Signatures: []string{sig},
			Message: core.Message{
				AccountKeys: []string{testKey(1), testKey(2), testKey(3), testKey(4), whirlpool},
				Instructions: []core.CompiledInstruction{
					{ProgramIDIndex: 4, Accounts: []uint16{0, 1, 2, 3}, Data: base58.Encode(append(d[:], payload...))},
				},
			},
		},
		Meta: &core.TransactionMeta{},
	}
}

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string][]string
	nulls   map[string]int // 返回 null 的次数，<0 表示永远 null
	calls   map[string]int
	txs     map[string]*core.RawTransaction
	pageErr error
	befores []string
}

func (f *fakeFetcher) SignaturesForAddress(_ context.Context, address, before string, limit int) ([]SignatureInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	f.befores = append(f.befores, before)
	var out []SignatureInfo
	for _, s := range f.pages[before] {
		out = append(out, SignatureInfo{Signature: s})
	}
	return out, nil
}

func (f *fakeFetcher) Transaction(_ context.Context, sig string) (*core.RawTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[sig]++
	if n := f.nulls[sig]; n < 0 || f.calls[sig] <= n {
		return nil, nil
	}
	return f.txs[sig], nil
}

type fakeProgress struct {
	mu        sync.Mutex
	processed map[string]bool
	marked    []string
	cursors   map[string]string
}

func (p *fakeProgress) FilterUnprocessed(_ context.Context, sigs []string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, s := range sigs {
		if !p.processed[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *fakeProgress) MarkSignatures(_ context.Context, records []*progress.SignatureRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range records {
		p.marked = append(p.marked, r.Signature)
		p.processed[r.Signature] = true
	}
	return nil
}

func (p *fakeProgress) Cursor(_ context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursors[name], nil
}

func (p *fakeProgress) SaveCursor(_ context.Context, name, cursor string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursors[name] = cursor
	return nil
}

type fakeSink struct {
	batches []*processor.BatchResult
	err     error
}

func (s *fakeSink) Dispatch(_ context.Context, source string, batch *processor.BatchResult) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, batch)
	return nil
}

func newProcessor(t *testing.T) *processor.Processor {
	t.Helper()
	prog, err := processor.LoadProgram(whirlpool, filepath.Join("..", "..", "idl", "testdata", "swap_program.json"))
	require.NoError(t, err)
	reg, err := processor.NewRegistry([]string{whirlpool}, prog)
	require.NoError(t, err)
	return processor.NewProcessor(reg, 2, nil)
}

func newFixture(t *testing.T) (*fakeFetcher, *fakeProgress) {
	f := &fakeFetcher{
		pages: map[string][]string{
			"":   {"s3", "s2", "s1"},
			"s1": {"s0"},
		},
		nulls: map[string]int{"s2": 2, "s0": -1},
		calls: map[string]int{},
		txs:   map[string]*core.RawTransaction{},
	}
	for _, s := range []string{"s3", "s2", "s1", "s0"} {
		f.txs[s] = swapTx(t, s)
	}
	p := &fakeProgress{processed: map[string]bool{"s1": true}, cursors: map[string]string{}}
	return f, p
}

func testOptions() Options {
	return Options{FetchRetries: 3, RetryBackoff: time.Millisecond, ResumeFromStore: true, Workers: 2}
}

func TestManager_RunProgram(t *testing.T) {
	f, p := newFixture(t)
	sink := &fakeSink{}
	acc := processor.NewAccumulator(nil)
	m := NewManager(f, newProcessor(t), sink, p, acc, testOptions())

	require.NoError(t, m.RunProgram(context.Background(), whirlpool))

	assert.Equal(t, []string{"", "s1", "s0"}, f.befores)
	require.Len(t, sink.batches, 2)
	assert.Equal(t, 2, sink.batches[0].Stats.Decoded)
	assert.Equal(t, 0, sink.batches[1].Stats.Transactions)

	// s1 已处理被跳过，s0 一直为 null 不标记
	assert.Equal(t, 0, f.calls["s1"])
	assert.Equal(t, 3, f.calls["s2"])
	assert.Equal(t, 3, f.calls["s0"])
	assert.ElementsMatch(t, []string{"s3", "s2"}, p.marked)

	// 第二页有缺失交易，游标停在第一页
	assert.Equal(t, "s1", p.cursors[cursorName(whirlpool)])
	assert.Equal(t, []string{"s3", "s2"}, acc.Hashes("swap"))
}

func TestManager_ResumeFromCursor(t *testing.T) {
	f, p := newFixture(t)
	p.cursors[cursorName(whirlpool)] = "s1"
	m := NewManager(f, newProcessor(t), nil, p, nil, testOptions())

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, []string{"s1", "s0"}, f.befores)
}

func TestManager_RepeatedCursorStops(t *testing.T) {
	f, p := newFixture(t)
	f.pages["s1"] = []string{"s1"}
	m := NewManager(f, newProcessor(t), nil, p, nil, testOptions())

	require.NoError(t, m.RunProgram(context.Background(), whirlpool))
	assert.Equal(t, []string{"", "s1"}, f.befores)
}

func TestManager_MaxPages(t *testing.T) {
	f, p := newFixture(t)
	opts := testOptions()
	opts.MaxPages = 1
	m := NewManager(f, newProcessor(t), nil, p, nil, opts)

	require.NoError(t, m.RunProgram(context.Background(), whirlpool))
	assert.Equal(t, []string{""}, f.befores)
}

func TestManager_Errors(t *testing.T) {
	f, p := newFixture(t)
	f.pageErr = errors.New("rpc down")
	m := NewManager(f, newProcessor(t), nil, p, nil, testOptions())
	assert.ErrorContains(t, m.Run(context.Background()), "rpc down")

	f, p = newFixture(t)
	m = NewManager(f, newProcessor(t), &fakeSink{err: errors.New("kafka down")}, p, nil, testOptions())
	assert.ErrorContains(t, m.RunProgram(context.Background(), whirlpool), "kafka down")
	assert.Empty(t, p.marked)
	assert.Empty(t, p.cursors)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f, p = newFixture(t)
	m = NewManager(f, newProcessor(t), nil, p, nil, testOptions())
	assert.ErrorIs(t, m.RunProgram(ctx, whirlpool), context.Canceled)
}

func TestOptions_Normalize(t *testing.T) {
	var o Options
	o.normalize()
	assert.Equal(t, 500, o.PageLimit)
	assert.Equal(t, 5, o.FetchRetries)
	assert.Positive(t, o.Workers)

	o = Options{PageLimit: 5000}
	o.normalize()
	assert.Equal(t, 500, o.PageLimit)
}
