package progress

// Emitter is a Registry bound to one job ID.
type Emitter struct {
	reg   Registry
	jobID string
}

// NewEmitter returns an Emitter publishing to jobID through reg.
func NewEmitter(reg Registry, jobID string) *Emitter {
	return &Emitter{reg: reg, jobID: jobID}
}

func (e *Emitter) JobID() string { return e.jobID }

// Emit forwards to the registry. The result is informational only.
func (e *Emitter) Emit(typ EventType, message string, data map[string]any) bool {
	if e == nil || e.reg == nil {
		return false
	}
	return e.reg.Emit(e.jobID, typ, message, data)
}

// Done drops the job's subscriber binding.
func (e *Emitter) Done() {
	if e == nil || e.reg == nil {
		return
	}
	e.reg.Unregister(e.jobID)
}
