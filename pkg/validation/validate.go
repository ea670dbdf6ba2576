// Package validation checks the effective configuration before the service
// boots. Every problem is collected so the operator sees the full list at
// once instead of fixing one field per restart.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/adhocore/gronx"

	"ingestd/pkg/config"
)

var validEngines = map[string]bool{"": true, "nethttp": true, "fasthttp": true}
var validLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}

// ValidateConfig returns an error listing every invalid field, or nil.
func ValidateConfig(c *config.Config) error {
	var errs []string

	if strings.TrimSpace(c.Job.Name) == "" {
		errs = append(errs, "job.name is required")
	} else if strings.ContainsAny(c.Job.Name, ":/ ") {
		errs = append(errs, fmt.Sprintf("job.name %q must not contain ':', '/' or spaces", c.Job.Name))
	}
	if c.Job.HardLimit.Duration() <= 0 {
		errs = append(errs, "job.hard_limit must be positive")
	}
	if c.Job.SafetyBuffer.Duration() <= 0 {
		errs = append(errs, "job.safety_buffer must be positive")
	}
	if c.Job.HardLimit.Duration() > 0 && c.Job.SafetyBuffer.Duration() >= c.Job.HardLimit.Duration() {
		errs = append(errs, fmt.Sprintf("job.safety_buffer (%s) must be smaller than job.hard_limit (%s)",
			c.Job.SafetyBuffer.Duration(), c.Job.HardLimit.Duration()))
	}
	if c.Job.RetryInterval.Duration() <= 0 {
		errs = append(errs, "job.retry_interval must be positive")
	}

	if strings.TrimSpace(c.Source.Dir) == "" {
		errs = append(errs, "source.dir is required")
	}
	if p := c.Source.Pattern; p != "" {
		if _, err := path.Match(p, "probe"); err != nil {
			errs = append(errs, fmt.Sprintf("source.pattern %q is not a valid match pattern", p))
		}
	}
	if c.Source.MaxFileSize < 0 {
		errs = append(errs, "source.max_file_size must not be negative")
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be at least 1")
	}
	if c.Retry.InitialDelay.Duration() <= 0 {
		errs = append(errs, "retry.initial_delay must be positive")
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, "retry.multiplier must be at least 1")
	}

	if err := checkURL("extract.url", c.Extract.URL); err != nil {
		errs = append(errs, err.Error())
	}
	if err := checkURL("warehouse.url", c.Warehouse.URL); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Warehouse.RPS < 0 || c.Warehouse.Burst < 0 {
		errs = append(errs, "warehouse.rps and warehouse.burst must not be negative")
	}

	if c.Retention.Enabled {
		if !gronx.IsValid(c.Retention.Cron) {
			errs = append(errs, fmt.Sprintf("retention.cron %q is not a valid cron expression", c.Retention.Cron))
		}
		if c.Retention.MaxAge.Duration() <= 0 {
			errs = append(errs, "retention.max_age must be positive when retention is enabled")
		}
		if c.Retention.MinAge.Duration() < 0 {
			errs = append(errs, "retention.min_age must not be negative")
		}
		if c.Retention.MinAge.Duration() >= c.Retention.MaxAge.Duration() && c.Retention.MaxAge.Duration() > 0 {
			errs = append(errs, "retention.min_age must be smaller than retention.max_age")
		}
		if c.Retention.BatchSize < 1 {
			errs = append(errs, "retention.batch_size must be at least 1")
		}
	}

	if !validEngines[c.Server.Engine] {
		errs = append(errs, fmt.Sprintf("server.engine %q must be nethttp or fasthttp", c.Server.Engine))
	}
	cert, key := c.Server.TLS.CertFile, c.Server.TLS.KeyFile
	if (cert == "") != (key == "") {
		errs = append(errs, "server.tls.cert_file and server.tls.key_file must be set together")
	}
	if c.Server.RateLimit.RPS < 0 || c.Server.RateLimit.Burst < 0 {
		errs = append(errs, "server.rate_limit.rps and burst must not be negative")
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// checkURL accepts empty (development fallback) or an absolute http(s) URL.
func checkURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s %q must be an absolute http(s) URL", field, raw)
	}
	return nil
}
