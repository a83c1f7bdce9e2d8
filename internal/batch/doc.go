// Package batch generates many SAME alerts as background jobs. Jobs are
// created from JSON or CSV alert lists, started explicitly, processed by a
// bounded worker pool and expire some time after they finish.
package batch
