package research

import "fmt"

// Stage names a step of the pipeline.
type Stage string

const (
	StageScoping    Stage = "scoping"
	StageBrief      Stage = "brief"
	StageSupervisor Stage = "supervisor"
	StageReport     Stage = "report"
)

// StageError 标记导致流程中止的阶段，原始错误通过 Unwrap 保留。
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
