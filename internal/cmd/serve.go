// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mia-platform/logdispatch/internal/console"
	"github.com/mia-platform/logdispatch/internal/dispatch"
	"github.com/mia-platform/logdispatch/internal/logger"
	"github.com/mia-platform/logdispatch/internal/loggerservice"
	"github.com/mia-platform/logdispatch/internal/logging"
	"github.com/mia-platform/logdispatch/internal/server"
	"github.com/mia-platform/logdispatch/internal/transport"
)

const (
	rpcNetworkFlagName  = "rpc-network"
	rpcNetworkFlagUsage = "Network of the rpc listener, one of tcp, tcp4, tcp6 or unix. Overrides RPC_NETWORK"

	rpcAddressFlagName  = "rpc-address"
	rpcAddressFlagUsage = "Address, or socket path, of the rpc listener. Overrides RPC_ADDRESS"

	wsAddressFlagName  = "ws-address"
	wsAddressFlagUsage = "If set, also serves websocket clients on this host:port at /rpc. Overrides WS_ADDRESS"

	logsHomeFlagName  = "logs-home"
	logsHomeFlagUsage = "Directory relative file loggers are written to. Overrides LOGS_HOME"

	defaultLevelFlagName  = "default-level"
	defaultLevelFlagUsage = "Level of loggers without an explicit one. Overrides DEFAULT_LOG_LEVEL"

	resourcesPathFlagName  = "resources-file"
	resourcesPathFlagShort = "f"
	resourcesPathFlagUsage = "Path to a file or directory of logger resources to announce at startup. Can be specified multiple times."

	serveLoggerName = "logdispatch:serve"
)

// serveFlags holds the flags for the "serve" command.
type serveFlags struct {
	rpcNetwork    string
	rpcAddress    string
	wsAddress     string
	logsHome      string
	defaultLevel  string
	resourcePaths []string
}

// addFlags adds the cli flags to the cobra command.
func (f *serveFlags) addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.rpcNetwork, rpcNetworkFlagName, "", rpcNetworkFlagUsage)
	flags.StringVar(&f.rpcAddress, rpcAddressFlagName, "", rpcAddressFlagUsage)
	flags.StringVar(&f.wsAddress, wsAddressFlagName, "", wsAddressFlagUsage)
	flags.StringVar(&f.logsHome, logsHomeFlagName, "", logsHomeFlagUsage)
	flags.StringVar(&f.defaultLevel, defaultLevelFlagName, "", defaultLevelFlagUsage)
	flags.StringArrayVarP(
		&f.resourcePaths,
		resourcesPathFlagName,
		resourcesPathFlagShort,
		nil,
		resourcesPathFlagUsage)
}

// toOptions reads the environment configuration and applies the flags set on cmd on top of it.
func (f *serveFlags) toOptions(cmd *cobra.Command) (*serveOptions, error) {
	transportConfig, err := transport.LoadConfig()
	if err != nil {
		return nil, err
	}

	serviceConfig, err := loggerservice.LoadConfig()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed(rpcNetworkFlagName) {
		transportConfig.Network = f.rpcNetwork
	}
	if flags.Changed(rpcAddressFlagName) {
		transportConfig.Address = f.rpcAddress
	}
	if flags.Changed(wsAddressFlagName) {
		transportConfig.WebsocketAddress = f.wsAddress
	}
	if flags.Changed(logsHomeFlagName) {
		serviceConfig.LogsHome = f.logsHome
	}
	if flags.Changed(defaultLevelFlagName) {
		serviceConfig.DefaultLogLevel = f.defaultLevel
	}

	resourcePaths, err := collectPaths(f.resourcePaths)
	if err != nil {
		return nil, err
	}

	return &serveOptions{
		transport:     *transportConfig,
		service:       *serviceConfig,
		resourcePaths: resourcePaths,
		newServer:     server.NewServer,
		console:       console.NewSink(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	}, nil
}

// serveOptions holds the options set for the current serve function.
type serveOptions struct {
	transport     transport.Config
	service       loggerservice.Config
	resourcePaths []string
	newServer     func(ctx context.Context) (server.Server, error)
	console       dispatch.ConsoleSink

	lock sync.Mutex
}

// validate validates the serve options and returns an error if something is wrong.
func (o *serveOptions) validate() error {
	if err := transport.ValidateConfig(&o.transport); err != nil {
		return fmt.Errorf("%w: %w", errInvalidFlag, err)
	}

	if _, err := logging.ParseLevel(o.service.DefaultLogLevel); err != nil {
		return fmt.Errorf("%w: %s: %w", errInvalidFlag, defaultLevelFlagName, err)
	}

	if err := loggerservice.ValidateConfig(&o.service); err != nil {
		return fmt.Errorf("%w: %w", errInvalidFlag, err)
	}

	return nil
}

// execute serves rpc clients until ctx is done or the process is interrupted.
func (o *serveOptions) execute(ctx context.Context) error {
	if !o.lock.TryLock() {
		return nil
	}
	defer o.lock.Unlock()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logger.Named(ctx, serveLoggerName)

	resources, err := loadResourceConfigs(o.resourcePaths)
	if err != nil {
		return err
	}

	service := loggerservice.New(o.service)
	defer func() {
		if err := service.Close(); err != nil {
			log.Warn("closing logger service", "error", err.Error())
		}
	}()

	endpoint := dispatch.NewEndpoint(service, o.console)
	if err := registerResources(ctx, endpoint, resources); err != nil {
		return err
	}
	log.Debug("logger resources announced", "count", len(resources))

	rpcServer := transport.NewServer(ctx, endpoint)
	rpcServer.AllowOrigins(o.transport.AllowedOrigins...)

	statusServer, err := o.newServer(ctx)
	if err != nil {
		return err
	}
	addInspectionRoutes(statusServer, endpoint, service, rpcServer)
	statusServer.StartAsync(ctx)
	defer func() {
		if err := statusServer.Stop(); err != nil {
			log.Warn("stopping status server", "error", err.Error())
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Go(func() {
		errs <- rpcServer.ListenAndServe(ctx, o.transport.Network, o.transport.Address)
	})
	if o.transport.WebsocketAddress != "" {
		wg.Go(func() {
			errs <- rpcServer.ListenAndServeWebsocket(ctx, o.transport.WebsocketAddress)
		})
	}

	select {
	case <-ctx.Done():
	case err = <-errs:
	}
	cancel()
	wg.Wait()
	close(errs)

	for serveErr := range errs {
		err = errors.Join(err, serveErr)
	}

	log.Info("server stopped")
	return err
}

// inspectionClients is the body of the clients route.
type inspectionClients struct {
	Clients       int `json:"clients"`
	Subscriptions int `json:"subscriptions"`
}

// addInspectionRoutes exposes the state of the dispatch server on the status server.
func addInspectionRoutes(srv server.Server, endpoint *dispatch.Endpoint, service *loggerservice.Service, rpcServer *transport.Server) {
	srv.AddRoute(http.MethodGet, "/api/loggers", func(context.Context) (any, error) {
		return endpoint.Registry().Keys(), nil
	})
	srv.AddRoute(http.MethodGet, "/api/resources", func(context.Context) (any, error) {
		return service.LoggerResources(logging.GlobalScope), nil
	})
	srv.AddRoute(http.MethodGet, "/api/clients", func(context.Context) (any, error) {
		return inspectionClients{
			Clients:       rpcServer.Sessions(),
			Subscriptions: rpcServer.Subscriptions(),
		}, nil
	})
}
