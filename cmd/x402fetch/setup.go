package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	x402 "github.com/x402-foundation/x402fetch"
	x402http "github.com/x402-foundation/x402fetch/http"
	"github.com/x402-foundation/x402fetch/internal/config"
	"github.com/x402-foundation/x402fetch/logger"
	"github.com/x402-foundation/x402fetch/mechanisms/evm"
	"github.com/x402-foundation/x402fetch/mechanisms/svm"
	"github.com/x402-foundation/x402fetch/metrics"
	evmsigner "github.com/x402-foundation/x402fetch/signers/evm"
	svmsigner "github.com/x402-foundation/x402fetch/signers/svm"
)

// environment is what every command needs: configuration, logging and
// telemetry. Close flushes it.
type environment struct {
	cfg     *config.Config
	log     logger.Logger
	sink    *x402.AsyncSink
	metrics *http.Server
}

func setup(c *cli.Context) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}

	env := &environment{
		cfg: cfg,
		log: logger.NewZapLogger(cfg.LogLevel),
	}

	sinks := x402.MultiSink{logger.NewTransitionSink(env.log)}
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		sinks = append(sinks, metrics.NewMetrics(registry))
		env.metrics = serveMetrics(cfg.MetricsAddr, registry, env.log)
	}
	env.sink = x402.NewAsyncSink(sinks, x402.DefaultAsyncSinkSize)
	return env, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("serving metrics", map[string]any{"addr": addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", map[string]any{"error": err})
		}
	}()
	return server
}

func (env *environment) Close() {
	env.sink.Close()
	if dropped := env.sink.Dropped(); dropped > 0 {
		env.log.Warn("dropped x402 transitions", map[string]any{"count": dropped})
	}
	if env.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		env.metrics.Shutdown(ctx)
	}
	if z, ok := env.log.(*logger.ZapLogger); ok {
		_ = z.Sync()
	}
}

// signers registers a scheme for every wallet in the configuration.
func (env *environment) signers(ctx context.Context) (*x402.X402Client, error) {
	cfg := env.cfg
	if !cfg.HasWallet() {
		return nil, fmt.Errorf("no wallet configured: set EVM_PRIVATE_KEY or SVM_PRIVATE_KEY")
	}

	client := x402.Newx402Client()

	if cfg.EVMPrivateKey != "" {
		var signer *evmsigner.ClientSigner
		var err error
		if cfg.EVMRPCURL != "" {
			signer, err = evmsigner.DialClientSigner(ctx, cfg.EVMPrivateKey, cfg.EVMRPCURL)
		} else {
			signer, err = evmsigner.NewClientSignerFromPrivateKey(cfg.EVMPrivateKey)
		}
		if err != nil {
			return nil, fmt.Errorf("evm wallet: %w", err)
		}
		evm.RegisterClient(client, signer)
		env.log.Debug("registered evm wallet", map[string]any{"address": signer.Address()})
	}

	if cfg.SVMPrivateKey != "" {
		signer, err := svmsigner.NewClientSignerFromPrivateKey(cfg.SVMPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("svm wallet: %w", err)
		}
		svm.RegisterClient(client, signer, &svm.ClientConfig{RPCURL: cfg.SolanaRPCURL}, x402.NetworkSolana)
		svm.RegisterClient(client, signer, &svm.ClientConfig{RPCURL: cfg.SolanaDevnetRPCURL}, x402.NetworkSolanaDevnet)
		env.log.Debug("registered svm wallet", map[string]any{"address": signer.Address().String()})
	}

	return client, nil
}

// httpClient builds the paying client over the configured wallets.
func (env *environment) httpClient(ctx context.Context) (*x402http.Client, error) {
	signers, err := env.signers(ctx)
	if err != nil {
		return nil, err
	}

	opts := []x402http.ClientOption{
		x402http.WithHTTPClient(&http.Client{Timeout: env.cfg.Timeout}),
		x402http.WithLogger(env.log),
		x402http.WithTransitionSink(env.sink),
	}
	if env.cfg.PaymentHeader != "" {
		opts = append(opts, x402http.WithPaymentHeader(env.cfg.PaymentHeader))
	}
	return x402http.NewClient(signers, opts...), nil
}
