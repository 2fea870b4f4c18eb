package board

import "os"

// ResolveSessionID resolves the caller's session identity via the four-tier
// fallback: explicit parameter, EDDA_SESSION_ID, inference from heartbeats
// (only when exactly one session is active), then a deterministic
// "cli-<label>" fallback. Returns (sessionID, label).
func ResolveSessionID(explicit, projectID, fallbackLabel string) (string, string) {
	envLabel := os.Getenv("EDDA_SESSION_LABEL")
	label := envLabel
	if label == "" {
		label = fallbackLabel
	}

	if explicit != "" {
		return explicit, label
	}
	if sid := os.Getenv("EDDA_SESSION_ID"); sid != "" {
		return sid, label
	}
	if sid, inferredLabel, ok := inferFromHeartbeats(projectID); ok {
		if envLabel != "" {
			return sid, envLabel
		}
		return sid, inferredLabel
	}
	return "cli-" + fallbackLabel, label
}

// inferFromHeartbeats returns the sole active session's identity; ok is
// false when zero or multiple sessions are active (attribution would be
// ambiguous).
func inferFromHeartbeats(projectID string) (sessionID, label string, ok bool) {
	active, err := ActiveSessions(projectID)
	if err != nil || len(active) != 1 {
		return "", "", false
	}
	s := active[0]
	label = s.State.Label
	if label == "" {
		label = s.SessionID
	}
	return s.SessionID, label, true
}
