// Package router fans confirmation events out to interested clients.
//
// Two inputs feed it: the filtered upstream link, whose events go to the
// subscribers of the event's account and link account with is_filtered:true,
// and the optional all-confirmations link, whose events go to every listen_all
// client with is_filtered:false. Each recipient is resolved from a snapshot
// taken before fan-out and receives the event once; one failed delivery does
// not affect the others.
package router
