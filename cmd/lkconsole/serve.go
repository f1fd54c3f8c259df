package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/console"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/internal/fakebackend"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/internal/rate"
	promexport "github.com/lk-cosmetics/lkCosmeticsSystemFrontend/metrics/export/prometheus"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(o *globalOptions) *cobra.Command {
	var (
		addr      string
		redisAddr string
		fake      bool
		trusted   []string
		signIn    = rate.DefaultConfig()
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the console",
		Long: `Serve the console pages, the authenticated /api proxy, /healthz and
/metrics. The session is restored from the refresh cookie in the background;
a browser still has to sign in to be bound to it. State-changing requests from
other origins are rejected.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fake {
				stop, err := o.startFakeBackend()
				if err != nil {
					return err
				}
				defer stop()
			}

			h, err := o.openClient(redisAddr)
			if err != nil {
				return err
			}
			defer h.cleanup()

			var metrics http.Handler
			if o.cfg.Metrics.Enabled {
				metrics = promexport.NewExporter(h.client, nil).Handler()
			}

			opts := console.Options{Logger: o.logger, Metrics: metrics, TrustedOrigins: trusted}
			if h.redis != nil && signIn.MaxAttempts > 0 {
				limiter, err := rate.New(h.redis, signIn)
				if err != nil {
					return err
				}
				opts.SignInLimiter = limiter
				o.logger.Info("sign-in throttle enabled",
					"max_attempts", signIn.MaxAttempts,
					"cooldown", signIn.Cooldown.String(),
				)
			}

			handler, err := console.New(h.client, opts)
			if err != nil {
				return err
			}

			go func() {
				if err := h.client.Initialize(context.Background()); err != nil {
					o.logger.Warn("session not restored", "error", err)
				}
			}()

			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				o.logger.Info("console listening", "addr", addr, "backend", h.client.BaseURL().String())
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errCh:
				return err
			case <-quit:
			}

			o.logger.Info("shutting down console")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringSliceVar(&trusted, "trusted-origin", nil, "extra origin allowed to send state-changing requests, e.g. https://console.lk-cosmetics.tn")
	cmd.Flags().StringVar(&redisAddr, "redis", "", `redis address for the display cache, or "mini" for an embedded server`)
	cmd.Flags().BoolVar(&fake, "fake-backend", false, "run an in-process fake backend with demo accounts")
	cmd.Flags().IntVar(&signIn.MaxAttempts, "signin-max-attempts", signIn.MaxAttempts, "failed sign-ins allowed per window (needs --redis; 0 disables)")
	cmd.Flags().DurationVar(&signIn.Cooldown, "signin-cooldown", signIn.Cooldown, "sign-in throttle window")
	return cmd
}

// startFakeBackend serves the fake backend on a loopback port and points the
// configuration at it.
func (o *globalOptions) startFakeBackend() (func(), error) {
	backend := fakebackend.New()
	for _, acct := range demoAccounts {
		backend.AddAccount(acct)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: backend, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()

	o.cfg.API.BaseURL = "http://" + ln.Addr().String() + fakebackend.DefaultPrefix
	o.logger.Info("fake backend started", "url", o.cfg.API.BaseURL)

	return func() { _ = srv.Close() }, nil
}

var demoAccounts = []fakebackend.Account{
	{
		ID: 1, Matricule: "ADMIN-001", Password: "admin123",
		Email: "superadmin@lk-cosmetics.test", FullName: "Super Admin",
		Role: "SuperAdmin",
	},
	{
		ID: 2, Matricule: "EMP-001", Password: "employee123",
		Email: "employee@lk-cosmetics.test", FullName: "Amina Ben Ali",
		Role: "Admin", Permissions: []string{"notifications.view"},
	},
}
