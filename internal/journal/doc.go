// Package journal records terminal work request outcomes in PostgreSQL.
//
// Record never blocks the caller: outcomes go into a bounded queue and are
// dropped, and counted, when it is full. A consumer goroutine batches them
// and writes each batch with COPY, on size or on the flush interval.
// The table is append-only.
package journal
