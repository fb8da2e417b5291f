/*
scheduler.go - Month-end closing reminder

PURPOSE:
  Periodically checks the readiness of months that have already ended and
  logs a warning while they remain open. Nothing is written: closing stays
  a deliberate action through POST /api/snapshots/{month}/close.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Looks back LookbackMonths from the current month, oldest first
  - Skips months nobody has started (no snapshot, prices still open)
  - Logs one entry per open month with what still blocks closing

USAGE:
  reminder := NewClosingReminder(handler.Closer, log)
  reminder.Start()
  // ... later
  reminder.Stop()

SEE ALSO:
  - inventory/closing.go: Closer.Readiness
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/erp-ledger/inventory"
)

// ClosingReminder warns about ended months that are still open.
type ClosingReminder struct {
	Closer         *inventory.Closer
	Log            logrus.FieldLogger
	CheckInterval  time.Duration
	LookbackMonths int
	Enabled        bool

	Now func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewClosingReminder creates a reminder checking every hour over the last
// three months.
func NewClosingReminder(closer *inventory.Closer, log logrus.FieldLogger) *ClosingReminder {
	return &ClosingReminder{
		Closer:         closer,
		Log:            log,
		CheckInterval:  time.Hour,
		LookbackMonths: 3,
		Enabled:        true,
	}
}

// Start begins the reminder loop.
func (cr *ClosingReminder) Start() {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if !cr.Enabled {
		cr.logger().Info("closing reminder disabled")
		return
	}
	if cr.ticker != nil {
		return
	}

	cr.ticker = time.NewTicker(cr.CheckInterval)
	cr.stop = make(chan struct{})
	cr.wg.Add(1)
	go cr.run()

	cr.logger().WithField("interval", cr.CheckInterval.String()).Info("closing reminder started")
}

// Stop stops the reminder and waits for a running check to finish.
func (cr *ClosingReminder) Stop() {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if cr.ticker == nil {
		return
	}
	cr.ticker.Stop()
	close(cr.stop)
	cr.wg.Wait()
	cr.ticker = nil
	cr.logger().Info("closing reminder stopped")
}

func (cr *ClosingReminder) run() {
	defer cr.wg.Done()

	cr.RunNow(context.Background())
	for {
		select {
		case <-cr.ticker.C:
			cr.RunNow(context.Background())
		case <-cr.stop:
			return
		}
	}
}

// RunNow checks every ended month in the lookback window and returns the
// ones still open, oldest first.
func (cr *ClosingReminder) RunNow(ctx context.Context) []inventory.ClosingReadiness {
	current := inventory.DateOf(cr.now()).Month()
	month := current
	for i := 0; i < cr.LookbackMonths; i++ {
		month = month.Prev()
	}

	var open []inventory.ClosingReadiness
	for ; month.Before(current); month = month.Next() {
		r, err := cr.Closer.Readiness(ctx, month)
		if err != nil {
			cr.logger().WithError(err).WithField("month", month).Error("closing readiness check failed")
			continue
		}
		if r.State == inventory.StatusClosed || idle(r) {
			continue
		}
		open = append(open, *r)

		cr.logger().WithFields(logrus.Fields{
			"month":                  r.Month,
			"state":                  r.State,
			"bom_fixed":              r.BomFixed,
			"prices_fixed":           r.PricesFixed,
			"unresolved_differences": r.UnresolvedDifferences,
			"open_earlier_month":     r.OpenEarlierMonth,
			"ready":                  r.Ready,
		}).Warn("month has ended but is not closed")
	}
	return open
}

// idle reports a month nobody has started preparing.
func idle(r *inventory.ClosingReadiness) bool {
	return r.State == inventory.StatusDraft && !r.PricesFixed
}

func (cr *ClosingReminder) logger() logrus.FieldLogger {
	if cr.Log == nil {
		return logrus.StandardLogger()
	}
	return cr.Log
}

func (cr *ClosingReminder) now() time.Time {
	if cr.Now == nil {
		return time.Now()
	}
	return cr.Now()
}
