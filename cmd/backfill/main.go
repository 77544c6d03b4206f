package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime/debug"
	"sort"
	"syscall"
	"time"

	"github.com/Syoongy/sniffer/internal/config"
	"github.com/Syoongy/sniffer/internal/logic/backfill"
	"github.com/Syoongy/sniffer/internal/svc"
	"github.com/Syoongy/sniffer/pkg/logger"
	"github.com/zeromicro/go-zero/core/logx"
)

var configFile = flag.String("f", "etc/sniffer.yaml", "the config file")

func main() {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
		}
	}()

	flag.Parse()

	c := config.MustLoad(*configFile)
	logx.Must(logger.InitLogger(c.LogConf.ToLogOption()))
	defer logger.Sync()
	logx.MustSetup(c.LogConf.ToLogxConf())

	serviceContext, err := svc.NewServiceContext(c)
	logx.Must(err)
	defer serviceContext.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := backfill.NewManager(
		backfill.NewRpcFetcher(c.Rpc.Endpoint, c.Rpc.Encoding),
		serviceContext.Processor,
		serviceContext.Dispatcher,
		serviceContext.ProgressManager,
		serviceContext.Accumulator,
		backfill.OptionsFromConfig(c.Rpc, c.DecoderConf.Workers),
	)

	start := time.Now()
	if err := manager.Run(ctx); err != nil {
		logx.Errorf("[main::backfill] stopped with error: %v", err)
	}

	snapshot := serviceContext.Accumulator.Snapshot()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		logx.Infof("[main::backfill] %s: %d txs", name, len(snapshot[name]))
	}
	logx.Infof("[main::backfill] done, txs=%d instructions=%d cost=%v",
		serviceContext.Accumulator.Transactions(), len(names), time.Since(start))
}
