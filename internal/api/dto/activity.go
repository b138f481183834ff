package dto

// PhaseResponse reports the inactivity phase for the caller. Countdown is
// the whole seconds remaining until forced expiry and is only surfaced to
// the user while the phase is "warning".
type PhaseResponse struct {
	Phase            string `json:"phase"`
	CountdownSeconds int64  `json:"countdown_seconds"`
}
