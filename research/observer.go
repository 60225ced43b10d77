package research

import "time"

// Observer 接收流程级别的事件，用于指标上报。
type Observer interface {
	ObserveStage(stage string, duration time.Duration, err error)
	ObserveDelegation(status string)
	ObserveSupervisorIterations(n int)
	ObserveRun(outcome string, duration time.Duration)
}

// 委派结果状态。
const (
	DelegationSuccess  = "success"
	DelegationFallback = "fallback"
	DelegationInvalid  = "invalid_arguments"
)

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration, error) {}
func (nopObserver) ObserveDelegation(string)                  {}
func (nopObserver) ObserveSupervisorIterations(int)           {}
func (nopObserver) ObserveRun(string, time.Duration)          {}
