package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/Syoongy/sniffer/internal/config"
	"github.com/Syoongy/sniffer/internal/logic/grpc"
	"github.com/Syoongy/sniffer/internal/metrics"
	"github.com/Syoongy/sniffer/internal/svc"
	"github.com/Syoongy/sniffer/pkg/logger"
	"github.com/zeromicro/go-zero/core/logx"
	zerosvc "github.com/zeromicro/go-zero/core/service"
)

// 约 2.5 slot/秒
const slotsPerHour = 9000

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

	metricsServer := startMetricsServer(c.MetricsConf.ListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	flushEvery := time.Duration(c.ProgressConf.FlushIntervalSec) * time.Second
	if flushEvery <= 0 {
		flushEvery = 2 * time.Second
	}
	go serviceContext.ProgressManager.StartFlushLoop(ctx, flushEvery)
	if ttl := c.ProgressConf.SignatureTTLHours; ttl > 0 {
		serviceContext.ProgressManager.StartGCLoop(ctx, time.Hour, uint64(ttl)*slotsPerHour)
	}

	sg := zerosvc.NewServiceGroup()

	txChan := make(chan *grpc.TxUpdate, 1024)
	grpcService, err := grpc.NewGrpcStreamManager(c.Grpc, c.ProgramIDs(), txChan)
	if err != nil {
		panic(err)
	}
	sg.Add(grpcService)
	sg.Add(grpc.NewTxProcessor(serviceContext, txChan))

	logx.Infof("Starting grpc stream service, programs=%v", c.ProgramIDs())

	// 启动服务
	go sg.Start()

	// 等待退出信号
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logx.Info("Shutting down services...")
	sg.Stop()
	cancel()
	if metricsServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 3*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		done()
	}
}

func startMetricsServer(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Errorf("[main::metrics] listen %s failed: %v", addr, err)
		}
	}()
	return srv
}
