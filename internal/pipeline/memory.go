package pipeline

import (
	"log/slog"
	"runtime"
)

// logMemory records heap figures at a pipeline phase boundary.
func logMemory(jobID, label string) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	slog.Info("memory usage",
		"job_id", jobID,
		"phase", label,
		"alloc_mb", m.Alloc>>20,
		"heap_inuse_mb", m.HeapInuse>>20,
		"sys_mb", m.Sys>>20,
		"num_gc", m.NumGC,
	)
}
