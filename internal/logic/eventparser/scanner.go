package eventparser

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/Syoongy/sniffer/internal/logic/core"
	"github.com/Syoongy/sniffer/internal/logic/discriminator"
	"github.com/Syoongy/sniffer/internal/logic/normalize"
	"github.com/Syoongy/sniffer/pkg/logger"
)

const (
	programLogPrefix  = "Program log: "
	programDataPrefix = "Program data: "
)

var programSuccess = regexp.MustCompile(`^Program (.*) success`)

// Scanner 单笔交易的日志状态机，逐行推进。
//
// 栈顶为被跟踪程序时，"Program log: " / "Program data: " 行去掉前缀后尝试解码事件，
// 其余行按系统日志处理：
//   - "Program <id> success" → 出栈
//   - "Program <tracked> invoke" → 压入被跟踪程序
//   - 其他含 "invoke" 的行 → 压入 cpi 占位
type Scanner struct {
	programID string
	index     *discriminator.EventIndex
	exec      ExecutionContext
}

func NewScanner(programID string, index *discriminator.EventIndex) *Scanner {
	return &Scanner{programID: programID, index: index}
}

// Step 处理一行日志。owned 表示该行由被跟踪程序输出（msg! / sol_log_data）。
// 出栈时栈为空返回 ErrExecutionStackUnderflow，调用方应停止扫描。
func (s *Scanner) Step(log string) (owned bool, ev *core.DecodedEvent, err error) {
	if s.exec.Depth() > 0 {
		top, err := s.exec.Program()
		if err != nil {
			return false, nil, err
		}
		if top == s.programID {
			if payload, ok := cutProgramOutput(log); ok {
				return true, s.decodeEvent(payload), nil
			}
		}
	}
	return false, nil, s.handleSystemLog(log)
}

// Depth 当前调用栈深度
func (s *Scanner) Depth() int {
	return s.exec.Depth()
}

func (s *Scanner) handleSystemLog(log string) error {
	logStart, _, _ := strings.Cut(log, ":")

	switch {
	case programSuccess.MatchString(logStart):
		return s.exec.Pop()
	case strings.HasPrefix(logStart, "Program "+s.programID+" invoke"):
		s.exec.Push(s.programID)
	case strings.Contains(logStart, "invoke"):
		s.exec.Push(cpiMarker)
	}
	return nil
}

// decodeEvent base64 失败或判别符未命中时视为普通日志，返回 nil
func (s *Scanner) decodeEvent(payload string) *core.DecodedEvent {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil
	}
	key, ok := s.index.KeyOf(raw)
	if !ok {
		return nil
	}
	entry, ok := s.index.Lookup(key)
	if !ok {
		return nil
	}

	data, err := entry.Layout.DecodeMap(raw[discriminator.Size:])
	if err != nil {
		logger.Warnf("[eventparser::decodeEvent] program=%s event=%s decode failed: %v", s.programID, entry.Name, err)
		return nil
	}
	normalize.Fields(data)
	return &core.DecodedEvent{Name: entry.Name, Data: data}
}

func cutProgramOutput(log string) (string, bool) {
	if rest, ok := strings.CutPrefix(log, programLogPrefix); ok {
		return rest, true
	}
	if rest, ok := strings.CutPrefix(log, programDataPrefix); ok {
		return rest, true
	}
	return "", false
}

// ParseLogs 扫描一笔交易的日志，返回被跟踪程序输出的事件（按日志顺序）。
// 调用栈下溢时放弃整笔交易的日志，返回 error。
func ParseLogs(programID string, index *discriminator.EventIndex, logs []string) ([]core.DecodedEvent, error) {
	s := NewScanner(programID, index)
	var events []core.DecodedEvent
	for i, log := range logs {
		_, ev, err := s.Step(log)
		if err != nil {
			return nil, fmt.Errorf("log line %d %q: %w", i, log, err)
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}
	return events, nil
}
