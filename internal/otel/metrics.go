package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all clawd metrics instruments.
type Metrics struct {
	CycleDuration        metric.Float64Histogram
	CyclesTotal          metric.Int64Counter
	LLMCallDuration      metric.Float64Histogram
	TokensUsed           metric.Int64Counter
	ExecutorDuration     metric.Float64Histogram
	ExecutorErrors       metric.Int64Counter
	ActiveTasks          metric.Int64UpDownCounter
	TasksCompletedTotal  metric.Int64Counter
	TasksBlockedTotal    metric.Int64Counter
	CuriosityAdmitted    metric.Int64Counter
	CuriosityRejected    metric.Int64Counter
	BudgetExhaustedTotal metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CycleDuration, err = meter.Float64Histogram("clawd.cycle.duration",
		metric.WithDescription("PLAN/ACT/REFLECT/DECIDE cycle duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.CyclesTotal, err = meter.Int64Counter("clawd.cycle.total",
		metric.WithDescription("Total reasoning cycles committed"),
	)
	if err != nil {
		return nil, err
	}

	m.LLMCallDuration, err = meter.Float64Histogram("clawd.llm.duration",
		metric.WithDescription("LM API call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TokensUsed, err = meter.Int64Counter("clawd.llm.tokens",
		metric.WithDescription("Total tokens consumed across LM calls"),
	)
	if err != nil {
		return nil, err
	}

	m.ExecutorDuration, err = meter.Float64Histogram("clawd.executor.duration",
		metric.WithDescription("Command execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ExecutorErrors, err = meter.Int64Counter("clawd.executor.errors",
		metric.WithDescription("Command execution error count"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveTasks, err = meter.Int64UpDownCounter("clawd.task.active",
		metric.WithDescription("Number of currently active tasks (0 or 1)"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCompletedTotal, err = meter.Int64Counter("clawd.task.completed",
		metric.WithDescription("Total tasks reaching the complete decision"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksBlockedTotal, err = meter.Int64Counter("clawd.task.blocked",
		metric.WithDescription("Total tasks reaching the blocked decision"),
	)
	if err != nil {
		return nil, err
	}

	m.CuriosityAdmitted, err = meter.Int64Counter("clawd.curiosity.admitted",
		metric.WithDescription("Curiosity proposals admitted as new tasks"),
	)
	if err != nil {
		return nil, err
	}

	m.CuriosityRejected, err = meter.Int64Counter("clawd.curiosity.rejected",
		metric.WithDescription("Curiosity proposals rejected by the admitter"),
	)
	if err != nil {
		return nil, err
	}

	m.BudgetExhaustedTotal, err = meter.Int64Counter("clawd.budget.exhausted",
		metric.WithDescription("Times a budget limit forced a task to stop"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
