// Package ledger persists the transactional record of every submission:
// one transaction per inbound media event, the durable outbox of results
// that could not be delivered, and the sink of terminally failed jobs.
// All mutation goes through Store methods that validate the status state
// machine and append to the per-transaction history.
package ledger
