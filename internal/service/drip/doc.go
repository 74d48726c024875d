// Package drip implements the pricing-abandonment drip campaign.
//
// It decides when a user enters a reminder sequence (Evaluator), sends each
// step on schedule (Processor), drives both from a periodic sweep (Sweeper),
// and exposes the boundary operations used by handlers (Engine). All state
// lives behind the repository interfaces defined in this package; nothing is
// held in process memory between calls.
//
// Repository implementations live in repository/postgres/, repository/memory/
// and repository/dynamo/.
package drip
