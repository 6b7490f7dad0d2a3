package supervisor

// shouldContinueAttempting implements spec §4.1's attempt-counter
// policy: attempts are permitted while under connectAttemptsMax
// (-1 disables the counter, i.e. unlimited); once exhausted, one more
// attempt is permitted for every round the status-hint fetch has not
// yet settled, trading extra attempts for a better terminal
// classification, bounded by the hint's own timeouts so the extension
// can never be unbounded (Open Question 3).
func shouldContinueAttempting(attemptIndex, connectAttemptsMax int, hintPending bool) bool {
	if connectAttemptsMax < 0 {
		return true
	}
	if attemptIndex <= connectAttemptsMax {
		return true
	}
	return hintPending
}
