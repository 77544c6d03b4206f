package eventparser

import (
	"fmt"
	"runtime/debug"

	"github.com/Syoongy/sniffer/internal/logic/core"
	"github.com/Syoongy/sniffer/internal/logic/discriminator"
	"github.com/Syoongy/sniffer/pkg/logger"
)

// ExtractEventsFromTx 扫描交易日志并补全事件的 TxHash / ProgramID。
// index 为空（IDL 未声明事件）时直接返回。
func ExtractEventsFromTx(txHash, programID string, index *discriminator.EventIndex, logs []string) (result []core.DecodedEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[eventparser::ExtractEventsFromTx] panic tx=%s: %+v\nstack: %s", txHash, r, debug.Stack())
			result, err = nil, fmt.Errorf("scan logs panic: %v", r)
		}
	}()

	if index == nil || index.Len() == 0 || len(logs) == 0 {
		return nil, nil
	}

	events, err := ParseLogs(programID, index, logs)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].TxHash = txHash
		events[i].ProgramID = programID
	}
	return events, nil
}
