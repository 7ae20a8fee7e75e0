package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tasktimer/internal/app"
	"tasktimer/internal/float"
	"tasktimer/internal/logging"
	"tasktimer/internal/server"
	"tasktimer/internal/surface"
	tasktimersdk "tasktimer/sdk/go"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := app.ResolveConfig(workspace, viper.GetViper())
			if err != nil {
				return err
			}
			a, err := app.Open(cmd.Context(), workspace, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				Active:   a,
				Surface:  a.Surface,
				BasePath: cfg.Server.BasePath,
				Auth:     server.AuthConfig{JWTSecret: cfg.Server.JWTSecret},
				Log:      logging.Component("http"),
			})
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return err
			}
			srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			log := logging.Component("serve")

			runCtx, stopRuntime := context.WithCancel(context.Background())
			runDone := make(chan error, 1)
			go func() { runDone <- a.Run(runCtx) }()
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("http server stopped")
				}
			}()
			fmt.Printf("Serving Tasktimer API on http://%s%s (OpenAPI at %s/openapi.json)\n",
				ln.Addr(), cfg.Server.BasePath, cfg.Server.BasePath)

			wait := gfshutdown.GracefulShutdown(
				context.Background(),
				cfg.Server.ShutdownTimeout,
				map[string]gfshutdown.Operation{
					"http": func(ctx context.Context) error {
						return srv.Shutdown(ctx)
					},
					"runtime": func(ctx context.Context) error {
						stopRuntime()
						select {
						case err := <-runDone:
							return err
						case <-ctx.Done():
							return ctx.Err()
						}
					},
				},
			)
			exitCode := <-wait
			log.Info().Int("exit_code", exitCode).Msg("server stopped")
			if exitCode != 0 {
				return fmt.Errorf("shutdown exited with code %d", exitCode)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().String("base-path", "", "API base path (overrides server.base_path)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.base_path", cmd.Flags().Lookup("base-path"))
	return cmd
}

func floatCmd() *cobra.Command {
	var remote, token string
	cmd := &cobra.Command{
		Use:   "float",
		Short: "Show a floating terminal timer",
		Long: `Without --remote the float runs against the workspace directly and picks up
timers started elsewhere on the next reconciliation. With --remote it follows
a running 'tt serve'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if remote != "" {
				return runRemoteFloat(ctx, remote, token)
			}
			return withApp(ctx, func(ctx context.Context, a *app.App) error {
				runCtx, stop := context.WithCancel(ctx)
				defer stop()
				runDone := make(chan error, 1)
				go func() { runDone <- a.Run(runCtx) }()
				messages, unsubscribe := a.Surface.Attach()
				defer unsubscribe()
				err := float.Run(ctx, messages, func(ctx context.Context, gen string, id int64) error {
					_, err := a.Surface.StopGeneration(ctx, gen, id)
					return err
				})
				stop()
				if runErr := <-runDone; err == nil {
					err = runErr
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "API base URL, e.g. http://127.0.0.1:7788/v1")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for --remote (minted from server.jwt_secret when empty)")
	return cmd
}

func runRemoteFloat(ctx context.Context, remote, token string) error {
	client := tasktimersdk.New(remote)
	client.BearerToken = token
	if token == "" {
		cfg, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetViper())
		if err != nil {
			return err
		}
		if cfg.Server.JWTSecret != "" {
			if client.BearerToken, err = server.IssueToken(cfg.Server.JWTSecret, "float", time.Hour); err != nil {
				return err
			}
		}
	}
	stream, err := client.FloatEvents(ctx)
	if err != nil {
		return err
	}
	messages := make(chan surface.Message)
	go func() {
		defer close(messages)
		for m := range stream {
			msg := surface.Message{Version: m.Version, Kind: surface.Kind(m.Kind), Generation: m.Generation}
			if m.Publish != nil {
				msg.Publish = &surface.PublishPayload{TaskID: m.Publish.TaskID, TaskName: m.Publish.TaskName, Seconds: m.Publish.Seconds}
			}
			select {
			case messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return float.Run(ctx, messages, func(ctx context.Context, gen string, id int64) error {
		_, err := client.FloatStop(ctx, gen, id)
		return err
	})
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetViper())
			if err != nil {
				return err
			}
			tok, err := server.IssueToken(cfg.Server.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": tok, "subject": subject})
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "local-user", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	return cmd
}
