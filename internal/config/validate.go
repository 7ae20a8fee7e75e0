package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"
)

// Validate checks the config and reports every bad field at once.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("timer.reconcile_interval", c.Timer.ReconcileInterval, positive),
		criterio.Run("timer.tick_interval", c.Timer.TickInterval, positive),
		c.validateNotify(),
		criterio.Run("sync.url", c.Sync.URL, httpURL),
		criterio.Run("sync.timeout", c.Sync.Timeout, positive),
		criterio.Run("server.base_path", c.Server.BasePath, basePath),
		criterio.Run("server.shutdown_timeout", c.Server.ShutdownTimeout, positive),
		criterio.Run("log.level", c.Log.Level, logLevel),
	)
}

func (c *Config) validateNotify() error {
	var errs criterio.FieldErrorsBuilder
	if c.Notify.Debounce < 0 {
		errs = errs.Append("notify.debounce", errors.New("must not be negative"))
	}
	if err := positive(c.Notify.LeakNudgeAfter); err != nil {
		errs = errs.Append("notify.leak_nudge_after", err)
	}
	if err := positive(c.Notify.LeakNudgeEvery); err != nil {
		errs = errs.Append("notify.leak_nudge_every", err)
	}
	return errs.ToError()
}

func positive(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("must be positive, got %s", d)
	}
	return nil
}

func httpURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

func basePath(p string) error {
	if p == "" {
		return nil
	}
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("must start with /, got %q", p)
	}
	return nil
}

func logLevel(level string) error {
	if level == "" {
		return nil
	}
	_, err := zerolog.ParseLevel(level)
	return err
}
