package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"zarrvault/pkg/app"
	"zarrvault/pkg/config"
	"zarrvault/pkg/server"

	"github.com/spf13/viper"
	"google.golang.org/grpc/reflection"
)

func main() {
	// 1. Load Config
	cfgFile := flag.String("config", "", "config file (default is $HOME/.zv/config.yaml)")
	addr := flag.String("addr", "", "listen address (default: server.addr)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <document>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := config.Load(*cfgFile); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	if *addr != "" {
		viper.Set("server.addr", *addr)
	}

	// 2. Init Core Application (日志级别等)
	application, err := app.NewApp()
	if err != nil {
		log.Fatalf("❌ Failed to initialize app: %v", err)
	}

	// 3. 校验并打开要服务的容器
	svc, err := server.NewBlockService(context.Background(), flag.Arg(0))
	if err != nil {
		log.Fatalf("❌ Failed to open container: %v", err)
	}

	// 4. Setup Network
	lis, err := net.Listen("tcp", application.ServerAddr)
	if err != nil {
		log.Fatalf("❌ Failed to listen on %s: %v", application.ServerAddr, err)
	}

	// 5. Setup gRPC Server
	grpcServer := server.NewGRPCServer()
	server.Register(grpcServer, svc)
	reflection.Register(grpcServer)

	go func() {
		fmt.Printf("🚀 Block server listening on %s (restore with grpc://%s)\n", lis.Addr(), lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("❌ Failed to serve: %v", err)
		}
	}()

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\n⚠️  Shutting down server...")
	grpcServer.GracefulStop()
	fmt.Println("👋 Server stopped.")
}
