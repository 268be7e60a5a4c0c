package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/scott-cotton/cli"
	"go.uber.org/zap"

	"pixlise-client/middleware"
	"pixlise-client/mock"
	"pixlise-client/registry"
	"pixlise-client/server"
)

type serveConfig struct {
	*cli.Command

	Network   string `cli:"name=network desc='stream network, tcp or unix'"`
	Addr      string `cli:"name=addr desc='stream listen address'"`
	Advertise string `cli:"name=advertise desc='address registered in etcd (default -addr)'"`
	GRPCAddr  string `cli:"name=grpc desc='gRPC listen address, empty to disable'"`
	HTTPAddr  string `cli:"name=http desc='JSON-RPC listen address, empty to disable'"`
	Etcd      string `cli:"name=etcd desc='comma separated etcd endpoints to register with'"`
	Service   string `cli:"name=service desc='service name registered in etcd'"`
	User      string `cli:"name=user desc='only accept this user'"`
	Password  string `cli:"name=password desc='password of -user'"`
	RateLimit int    `cli:"name=rate desc='calls per second the host accepts, 0 for no limit'"`
	Dev       bool   `cli:"name=dev desc='human readable debug logging'"`
}

func ServeCommand() *cli.Command {
	cfg := &serveConfig{
		Network: "tcp",
		Addr:    "127.0.0.1:7400",
		Service: server.DefaultServiceName,
	}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "serve").
		WithSynopsis("serve [-addr host:port] [-grpc host:port] [-http host:port] [-etcd endpoints]").
		WithDescription("serve the sample dataset until interrupted").
		WithOpts(opts...).
		WithRun(cfg.run)
}

func (cfg *serveConfig) run(cc *cli.Context, args []string) error {
	if _, err := cfg.Parse(cc, args); err != nil {
		return err
	}
	if (cfg.User == "") != (cfg.Password == "") {
		return fmt.Errorf("%w: -user and -password go together", cli.ErrUsage)
	}
	logger, err := newLogger(cfg.Dev)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var engineOpts []mock.Option
	if cfg.User != "" {
		engineOpts = append(engineOpts, mock.WithCredentials(cfg.User, cfg.Password))
	}
	engineOpts = append(engineOpts, mock.WithLogger(logger))
	s := mock.NewServer(mock.NewEngine(engineOpts...), server.WithLogger(logger), server.WithServiceName(cfg.Service))
	s.Use(middleware.Logging(logger))
	if cfg.RateLimit > 0 {
		s.Use(middleware.RateLimitReject(float64(cfg.RateLimit), cfg.RateLimit))
	}

	var reg registry.Registry
	if cfg.Etcd != "" {
		etcd, err := registry.NewEtcdRegistry(strings.Split(cfg.Etcd, ","), logger)
		if err != nil {
			return fmt.Errorf("connect to etcd: %w", err)
		}
		defer etcd.Close()
		reg = etcd
	}
	advertise := cfg.Advertise
	if advertise == "" {
		advertise = cfg.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errc := make(chan error, 3)

	go func() {
		logger.Info("serving stream", zap.String("network", cfg.Network), zap.String("addr", cfg.Addr))
		errc <- s.Serve(cfg.Network, cfg.Addr, advertise, reg)
	}()

	if cfg.GRPCAddr != "" {
		l, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		gs := s.GRPCServer()
		defer gs.GracefulStop()
		go func() {
			logger.Info("serving gRPC", zap.String("addr", cfg.GRPCAddr))
			errc <- gs.Serve(l)
		}()
	}

	if cfg.HTTPAddr != "" {
		h, err := s.HTTPHandler()
		if err != nil {
			return err
		}
		hs := &http.Server{Addr: cfg.HTTPAddr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
		defer hs.Close()
		go func() {
			logger.Info("serving JSON-RPC", zap.String("addr", cfg.HTTPAddr))
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errc:
		logger.Error("listener failed", zap.Error(err))
	}
	if serr := s.Shutdown(5 * time.Second); serr != nil {
		logger.Warn("shutdown", zap.Error(serr))
	}
	return err
}
