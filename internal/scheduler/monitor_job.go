package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/autofolio/autofolio/internal/events"
	"github.com/autofolio/autofolio/internal/monitor"
)

// MonitorJob runs one tiered monitor cycle on the intraday cron. It only
// observes and queues; trading happens in the daily execution job.
type MonitorJob struct {
	calendar     *TradingCalendar
	monitor      *monitor.Monitor
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewMonitorJob creates the intraday monitor cycle job.
func NewMonitorJob(calendar *TradingCalendar, mon *monitor.Monitor, eventManager *events.Manager, log zerolog.Logger) *MonitorJob {
	return &MonitorJob{
		calendar:     calendar,
		monitor:      mon,
		eventManager: eventManager,
		log:          log.With().Str("job", "monitor_cycle").Logger(),
	}
}

// Name implements Job.
func (j *MonitorJob) Name() string { return "monitor_cycle" }

// Run implements Job.
func (j *MonitorJob) Run() error {
	if !j.calendar.IsTradingDay(time.Now()) {
		j.log.Debug().Msg("Skipping cycle: not a trading day")
		return nil
	}

	result, err := j.monitor.RunCycle(context.Background())
	if err != nil {
		return err
	}

	for _, change := range result.Changes {
		j.eventManager.Emit(events.SignalChange, "monitor", map[string]interface{}{
			"symbol":      change.Symbol,
			"change_type": string(change.ChangeType),
			"urgency":     string(change.Urgency),
			"new_signal":  string(change.NewSignal),
		})
	}

	j.eventManager.Emit(events.MonitorCycleDone, "monitor", map[string]interface{}{
		"checked": result.Checked,
		"skipped": result.Skipped,
		"queued":  result.Queued,
		"changes": len(result.Changes),
	})
	return nil
}
