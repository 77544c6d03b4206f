package progress

import (
	"sync"
)

type sigBuffer struct {
	mu     sync.Mutex
	buffer []*SignatureRecord
}

func newSigBuffer() *sigBuffer {
	return &sigBuffer{}
}

func (b *sigBuffer) Add(records ...*SignatureRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer = append(b.buffer, records...)
}

// Flush 取出并清空缓冲
func (b *sigBuffer) Flush() []*SignatureRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	flushed := b.buffer
	b.buffer = nil
	return flushed
}

// Requeue 写库失败时放回缓冲头部，等待下一轮
func (b *sigBuffer) Requeue(records []*SignatureRecord) {
	if len(records) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer = append(records, b.buffer...)
}

func (b *sigBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}
