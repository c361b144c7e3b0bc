package jobs

import (
	"context"
	"errors"
	"log"
	"time"
)

// CodePurger drops expired login codes.
type CodePurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// CommandRelay exposes the relay's housekeeping hooks.
type CommandRelay interface {
	PurgeCompleted(ctx context.Context, retention time.Duration) (int, error)
	RefreshOnlineGauge() int
}

// Intervals controls how often each housekeeping job runs.
type Intervals struct {
	CodeSweep        time.Duration
	GaugeRefresh     time.Duration
	CommandSweep     time.Duration
	CommandRetention time.Duration
}

// Housekeeping runs the relay's periodic maintenance.
type Housekeeping struct {
	codes    CodePurger
	commands CommandRelay
	logger   *log.Logger
}

// NewHousekeeping constructs the maintenance jobs.
func NewHousekeeping(codes CodePurger, commands CommandRelay, logger *log.Logger) (*Housekeeping, error) {
	if codes == nil {
		return nil, errors.New("jobs: nil code purger")
	}
	if commands == nil {
		return nil, errors.New("jobs: nil command relay")
	}
	return &Housekeeping{codes: codes, commands: commands, logger: logger}, nil
}

// Register schedules every job on s. Command retention is skipped when zero.
func (h *Housekeeping) Register(s *Scheduler, in Intervals) error {
	if _, err := s.Every("login-code-sweep", in.CodeSweep, h.SweepCodes); err != nil {
		return err
	}
	if _, err := s.Every("online-gauge", in.GaugeRefresh, h.RefreshGauge); err != nil {
		return err
	}
	if in.CommandRetention <= 0 {
		return nil
	}
	_, err := s.Every("command-sweep", in.CommandSweep, func(ctx context.Context) error {
		return h.SweepCommands(ctx, in.CommandRetention)
	})
	return err
}

// SweepCodes removes expired login codes.
func (h *Housekeeping) SweepCodes(ctx context.Context) error {
	removed, err := h.codes.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		h.logf("jobs: removed %d expired login codes", removed)
	}
	return nil
}

// RefreshGauge republishes the online device count.
func (h *Housekeeping) RefreshGauge(context.Context) error {
	h.commands.RefreshOnlineGauge()
	return nil
}

// SweepCommands removes completed commands older than retention.
func (h *Housekeeping) SweepCommands(ctx context.Context, retention time.Duration) error {
	_, err := h.commands.PurgeCompleted(ctx, retention)
	return err
}

func (h *Housekeeping) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}
