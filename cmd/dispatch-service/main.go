package main

import (
	"flag"
	"fmt"

	"github.com/RescueLink/RescueLink/internal/common/config"
	"github.com/RescueLink/RescueLink/internal/common/logger"
	"github.com/RescueLink/RescueLink/internal/common/server"
	"github.com/RescueLink/RescueLink/internal/common/tracing"
	"github.com/RescueLink/RescueLink/internal/store"
	"google.golang.org/grpc"
)

var (
	configPath   = flag.String("config", "configs/dispatch-service.json", "配置文件路径")
	consulKVKey  = flag.String("consul-config-key", "", "从 Consul KV 加载配置的 key（设置后优先于配置文件）")
	consulKVHost = flag.String("consul-host", "localhost", "Consul 地址（配合 -consul-config-key）")
	consulKVPort = flag.Int("consul-port", 8500, "Consul 端口（配合 -consul-config-key）")
)

func main() {
	flag.Parse()

	// 加载配置：优先 Consul KV，其次本地文件
	var (
		cfg *config.Config
		err error
	)
	if *consulKVKey != "" {
		cfg, err = config.LoadConfigFromConsulKV(*consulKVHost, *consulKVPort, *consulKVKey)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 初始化存储并迁移表结构
	db, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// 启动统一的 gRPC 服务模板
	if err := server.RunGRPCServer(cfg, log, func(s *grpc.Server) error {
		// TODO: proto 定稿后在这里组装调度核心并注册 gRPC 服务
		// st := store.NewGorm(db)
		// pb.RegisterDispatchServiceServer(s, dispatchgrpc.NewServer(st, ...))
		return nil
	}); err != nil {
		log.Fatalf("dispatch-service exited with error: %v", err)
	}
}
