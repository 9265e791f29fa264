// Package dedupe remembers recently claimed submission keys so a resent
// widget submission is not processed twice.
//
// Keys are scoped to a session with [SubmissionKey]. A key stays claimed for
// the cache TTL; the cache is bounded and evicts the oldest claim first.
//
//	seen := dedupe.New(10*time.Minute, 10000)
//	defer seen.Close()
//
//	if !seen.Claim(dedupe.SubmissionKey(sessionID, clientMessageID)) {
//		return session.OutcomeIgnoredDuplicate
//	}
package dedupe
