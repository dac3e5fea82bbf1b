// Package health serves liveness, readiness and status information.
//
// Checker aggregates named readiness checks (storage ping, legacy probe) for
// the /ready endpoint. Reporter answers the status endpoint of the query API:
// legacy reachability, enabled features and the latest compatibility score.
// A legacy outage is reported as "degraded" and never fails the request.
package health
