// Package mirror publishes confirmation events to Kafka.
//
// Messages are keyed by the event's primary account so that one account's
// confirmations stay ordered within a partition. Publish never blocks the
// router: when the producer input is busy the event is dropped and counted.
package mirror
