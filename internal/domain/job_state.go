package domain

type JobState uint8

const (
	JobIdle JobState = iota
	JobStarting
	JobRunning
	JobPausing
	JobPaused
	JobStopping
	JobCompleted
	JobError
)

func (s JobState) String() string {
	switch s {
	case JobIdle:
		return "Idle"
	case JobStarting:
		return "Starting"
	case JobRunning:
		return "Running"
	case JobPausing:
		return "Pausing"
	case JobPaused:
		return "Paused"
	case JobStopping:
		return "Stopping"
	case JobCompleted:
		return "Completed"
	case JobError:
		return "Error"
	default:
		return "Unknown"
	}
}

func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobError
}

var jobTransitions = map[JobState][]JobState{
	JobIdle:     {JobStarting},
	JobStarting: {JobRunning},
	JobRunning:  {JobPausing, JobStopping},
	JobPausing:  {JobPaused},
	JobPaused:   {JobRunning, JobStopping},
	JobStopping: {JobCompleted},
}

// CanTransition reports whether s -> next is a legal edge. Any non-terminal
// state may move to JobError.
func (s JobState) CanTransition(next JobState) bool {
	if s.Terminal() {
		return false
	}
	if next == JobError {
		return true
	}
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
