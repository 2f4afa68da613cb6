// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package minitalk

import (
	"expvar"
	"strconv"

	"github.com/hashicorp/go-metrics"
)

// talkMetrics record session activity counters.
type talkMetrics struct {
	notifySent    expvar.Int
	notifyRecv    expvar.Int
	notifyDropped expvar.Int // received from an unexpected peer, or with nobody waiting
	bytesSent     expvar.Int // acknowledged by the receiver
	bytesRecv     expvar.Int // emitted by the receiver
	sessionDone   expvar.Int
	sessionLost   expvar.Int // abandoned because the peer died
	deadPeers     expvar.Int

	emap *expvar.Map
}

var rootMetrics = newTalkMetrics()

func newTalkMetrics() *talkMetrics {
	tm := &talkMetrics{emap: new(expvar.Map)}
	tm.emap.Set("notifications_sent", &tm.notifySent)
	tm.emap.Set("notifications_received", &tm.notifyRecv)
	tm.emap.Set("notifications_dropped", &tm.notifyDropped)
	tm.emap.Set("bytes_sent", &tm.bytesSent)
	tm.emap.Set("bytes_received", &tm.bytesRecv)
	tm.emap.Set("sessions_completed", &tm.sessionDone)
	tm.emap.Set("sessions_abandoned", &tm.sessionLost)
	tm.emap.Set("dead_peers", &tm.deadPeers)
	return tm
}

// Keys of the labelled counters reported to a metrics sink.
var (
	MetricSessionCompleted = []string{"minitalk", "session", "completed", "count"}
	MetricSessionAbandoned = []string{"minitalk", "session", "abandoned", "count"}
	MetricSessionBytes     = []string{"minitalk", "session", "bytes"}
	MetricDeadPeerCount    = []string{"minitalk", "peer", "dead", "count"}
)

// Label names attached to sink metrics.
const (
	LabelRole = "role"
	LabelPeer = "peer"
)

func sinkLabels(role string, peer PID) []metrics.Label {
	return []metrics.Label{
		{Name: LabelRole, Value: role},
		{Name: LabelPeer, Value: strconv.Itoa(int(peer))},
	}
}

func orBlackhole(ms metrics.MetricSink) metrics.MetricSink {
	if ms == nil {
		return &metrics.BlackholeSink{}
	}
	return ms
}
