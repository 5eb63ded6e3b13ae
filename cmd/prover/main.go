package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"selective-disclosure/disclosure"
	"selective-disclosure/document"
	"selective-disclosure/grammar"
	"selective-disclosure/notary"
	"selective-disclosure/shared"
)

func main() {
	config, envLoaded := shared.LoadProverConfig()

	logger, err := shared.NewLogger(shared.LoggerConfig{
		ServiceName: "prover",
		Development: config.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if !envLoaded {
		logger.Debug("No .env file loaded, using process environment")
	}

	grammar.SetLogger(logger.Logger)
	document.SetLogger(logger.Logger)
	disclosure.SetLogger(logger.Logger)
	notary.SetLogger(logger.Logger)

	client := notary.NewClient(notary.Config{Timeout: config.NotaryTimeout})
	service := disclosure.NewService(client, disclosure.Defaults{
		VerifierAddress: config.VerifierAddress,
		MaxSentData:     config.MaxSentData,
		MaxRecvData:     config.MaxRecvData,
	}, logger)
	if config.SessionTimeout > 0 {
		service.SetSessionTimeout(config.SessionTimeout)
	}

	server := &http.Server{
		Addr:        config.ListenAddr,
		Handler:     newServer(service, logger).routes(),
		ReadTimeout: 30 * time.Second,
	}

	logger.Info("Starting prover",
		zap.String("listen_addr", config.ListenAddr),
		zap.String("verifier_address", config.VerifierAddress),
		zap.Int("max_sent_data", config.MaxSentData),
		zap.Int("max_recv_data", config.MaxRecvData))

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info("Shutting down...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Critical("Server failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
