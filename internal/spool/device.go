package spool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/wiffzack/printspool/internal/config"
	"github.com/wiffzack/printspool/internal/core"
)

var (
	ErrPrinterOffline   = errors.New("printer is offline")
	ErrConnectionFailed = errors.New("connection failed")
)

const (
	defaultDevicePort    = "9100"
	defaultDeviceTimeout = 10 * time.Second
)

// DeviceSink streams ESC/POS bytes to a raw TCP printer. Repeated
// connection failures open the breaker so later jobs fail fast.
type DeviceSink struct {
	address string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[struct{}]
	dialer  net.Dialer
	logger  *zap.Logger
}

func NewDeviceSink(cfg config.DeviceConfig, logger *zap.Logger) *DeviceSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDeviceTimeout
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}

	address := cfg.Address
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, defaultDevicePort)
	}

	s := &DeviceSink{
		address: address,
		timeout: timeout,
		logger:  logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "printer " + address,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("printer breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s
}

func (s *DeviceSink) Write(ctx context.Context, a *core.Artifact) error {
	if a.Output != core.OutputEscPos {
		return fmt.Errorf("printer accepts escpos only, got %s: %w", a.Output, core.ErrIO)
	}

	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.send(ctx, a.Data)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %w", s.address, ErrPrinterOffline, core.ErrIO)
	}
	return err
}

func (s *DeviceSink) send(ctx context.Context, data []byte) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.dialer.DialContext(dialCtx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("%w: %s: %w: %w", ErrConnectionFailed, s.address, core.ErrIO, err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(s.timeout))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write to %s: %w: %w", s.address, core.ErrIO, err)
	}
	return nil
}

// State reports the breaker state for health output.
func (s *DeviceSink) State() string {
	return s.breaker.State().String()
}
