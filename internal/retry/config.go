package retry

import (
	"github.com/sirupsen/logrus"

	"github.com/rf-checker/rf-checker-go/internal/config"
)

// FromConfig policy for the retry section; zero fields keep DefaultPolicy values.
func FromConfig(cfg *config.RetryConfig, logger *logrus.Logger, observer Observer) *Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.Base >= 1 {
		p.Base = cfg.Base
	}
	if cfg.Unit > 0 {
		p.Unit = cfg.Unit
	}
	if cfg.JitterMax > 0 {
		p.JitterMax = cfg.JitterMax
	}
	if cfg.MaxDelay > 0 {
		p.MaxDelay = cfg.MaxDelay
	}
	if cfg.EmptyDelay > 0 {
		p.EmptyDelay = cfg.EmptyDelay
	}
	if logger != nil {
		p.Logger = logger
	}
	p.Observer = observer
	return p
}
