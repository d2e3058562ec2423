package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"time"
)

const (
	MessagesSent     = "MessagesSent"
	MessagesAcked    = "MessagesAcked"
	MessagesReceived = "MessagesReceived"
	MessagesDropped  = "MessagesDropped"
	PendingMessages  = "PendingMessages"
	Reconnects       = "Reconnects"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

type StatsUpdater struct {
	vars       *expvar.Map
	updateChan chan *metricsUpdateReq
}

type metricsUpdateReq struct {
	name  string
	value int
}

func (su *StatsUpdater) expvarHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	expvarData := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		expvarData[kv.Key] = value
	})

	json.NewEncoder(w).Encode(expvarData)
}

// NewStatsUpdater creates a new stats updater instance. The expvar map is
// created once per process, so repeated calls share the same counters.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		updateChan: make(chan *metricsUpdateReq, 512),
	}
	if mux != nil {
		mux.Handle("GET /debug/vars", http.HandlerFunc(su.expvarHandler))
	}

	if v, ok := expvar.Get("studychat-stats").(*expvar.Map); ok {
		su.vars = v
	} else {
		su.vars = expvar.NewMap("studychat-stats")
	}
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))
}

func (su *StatsUpdater) updateMetrics() {
	for req := range su.updateChan {
		metric, ok := su.vars.Get(req.name).(*expvar.Int)
		if !ok {
			panic("metric not found: " + req.name)
		}

		metric.Add(int64(req.value))
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.updateChan <- &metricsUpdateReq{name: name, value: 1}
}

func (su *StatsUpdater) Decr(name string) {
	su.updateChan <- &metricsUpdateReq{name: name, value: -1}
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, new(expvar.Int))
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

func (su *StatsUpdater) Stop() {
	close(su.updateChan)
}

// Value returns the current value of a registered counter.
func (su *StatsUpdater) Value(name string) int64 {
	if metric, ok := su.vars.Get(name).(*expvar.Int); ok {
		return metric.Value()
	}
	return 0
}

// NopStats discards all updates.
type NopStats struct{}

func (NopStats) Incr(string)           {}
func (NopStats) Decr(string)           {}
func (NopStats) RegisterMetric(string) {}
func (NopStats) Run()                  {}
