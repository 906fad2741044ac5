package command

import (
	"sync"
	"unicode/utf8"
)

// TruncationMarker 追加在被截断输出的末尾
const TruncationMarker = "\n...[output truncated]"

// Truncate 按字符（rune）截断到 limit，超出时追加 TruncationMarker
func Truncate(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:limit]) + TruncationMarker, true
}

// cappedBuffer 只保留前 limit 字节的输出，防止失控命令占满内存
type cappedBuffer struct {
	mu      sync.Mutex
	buf     []byte
	limit   int
	dropped int64
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit, buf: make([]byte, 0, min(limit, 4096))}
}

// captureLimit 保证至少能容纳 cap 个 UTF-8 字符再多一个
func captureLimit(outputCap int) int {
	return outputCap*utf8.UTFMax + utf8.UTFMax
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - len(b.buf)
	if room > 0 {
		n := min(room, len(p))
		b.buf = append(b.buf, p[:n]...)
		b.dropped += int64(len(p) - n)
	} else {
		b.dropped += int64(len(p))
	}
	// 始终报告全部写入，避免子进程因 EPIPE 提前退出
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func (b *cappedBuffer) Overflowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped > 0
}
