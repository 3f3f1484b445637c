package gateway

// NextAttemptStatus is the discriminator of the athlete's next-attempt
// view. Exactly one of the four variants is returned.
type NextAttemptStatus string

const (
	// StatusNoAttempts means the athlete has nothing left to lift.
	StatusNoAttempts NextAttemptStatus = "no_attempts"
	// StatusYouAreUp means the athlete is on the platform or called up next.
	StatusYouAreUp NextAttemptStatus = "you_are_up"
	// StatusEstimate means the athlete waits behind other attempts.
	StatusEstimate NextAttemptStatus = "estimate"
	// StatusBreakTimer means the athlete opens after the running break.
	StatusBreakTimer NextAttemptStatus = "break_timer"
)

// TimerView is the client-facing shape of one countdown.
type TimerView struct {
	TimerID      string `json:"timer_id"`
	Kind         string `json:"kind"`
	DurationSec  int    `json:"duration_sec"`
	RemainingSec int    `json:"remaining_sec"`
	State        string `json:"state"`
}

// NextAttemptView answers "when do I lift?" for one athlete.
type NextAttemptView struct {
	Status           NextAttemptStatus `json:"status"`
	AttemptID        string            `json:"attempt_id,omitempty"`
	AttemptNumber    int               `json:"attempt_number,omitempty"`
	RequestedWeight  float64           `json:"requested_weight,omitempty"`
	EstimatedWaitSec *int              `json:"estimated_wait_sec,omitempty"`
	AttemptTimer     *TimerView        `json:"attempt_timer,omitempty"`
	BreakTimer       *TimerView        `json:"break_timer,omitempty"`
}
