// Package publish emits alert events (encoded, decoded or heard on a
// monitored stream) to Kafka.
package publish
