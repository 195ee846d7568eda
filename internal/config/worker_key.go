package config

type WorkerKeyStruct struct {
	PersistAttemptsQueue    string
	PersistTimingAuditQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAttemptsQueue:    "persist_attempts_queue",
	PersistTimingAuditQueue: "persist_timing_audit_queue",
}
