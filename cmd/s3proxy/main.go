// Command s3proxy runs the S3-compatible read proxy: it fronts S3 and
// Azure Blob backends behind a virtual bucket namespace, authenticating
// inbound requests with AWS SigV4 and resolving routing through an
// external metadata API (spec §1, §6).
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

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/source-cooperative/data.source.coop/internal/config"
	ierrors "github.com/source-cooperative/data.source.coop/internal/errors"
	"github.com/source-cooperative/data.source.coop/internal/logging"
	"github.com/source-cooperative/data.source.coop/internal/pipeline"
	"github.com/source-cooperative/data.source.coop/internal/resolve"
	"github.com/source-cooperative/data.source.coop/internal/transport"
)

func init() {
	// don't import go.uber.org/automaxprocs to disable the log output
	_, _ = maxprocs.Set()
}

var cmdRoot = &cobra.Command{
	Use:           "s3proxy",
	Short:         "S3-compatible read proxy fronting S3 and Azure Blob backends",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	metadataClient, err := resolve.NewClient(cfg.SourceAPIURL, cfg.SourceAPIKey, cfg.SourceAPIProxyURL)
	if err != nil {
		return ierrors.Wrap(err, "build metadata API client")
	}
	resolvers := resolve.NewResolvers(metadataClient)

	backendTransport, err := transport.Build(transport.Options{})
	if err != nil {
		return ierrors.Wrap(err, "build backend transport")
	}

	handler := pipeline.New(resolvers, backendTransport)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logging.Infof("listening on %s", cfg.ListenAddr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return ierrors.Wrap(err, "serve")
		}
		return nil
	case <-ctx.Done():
		logging.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return ierrors.Wrap(err, "graceful shutdown")
		}
		return nil
	}
}

func main() {
	if err := cmdRoot.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
