package shared

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ServiceMetrics tracks operation counts and success rates for a service.
type ServiceMetrics struct {
	ServiceName          string           `json:"service_name"`
	TotalOperations      int64            `json:"total_operations"`
	SuccessfulOperations int64            `json:"successful_operations"`
	FailedOperations     int64            `json:"failed_operations"`
	LastUpdated          time.Time        `json:"last_updated"`
	Counters             map[string]int64 `json:"counters"`
	mutex                sync.RWMutex
}

// NewServiceMetrics creates a metrics tracker for a service.
func NewServiceMetrics(serviceName string) *ServiceMetrics {
	return &ServiceMetrics{
		ServiceName: serviceName,
		LastUpdated: time.Now(),
		Counters:    make(map[string]int64),
	}
}

// RecordOperation records an operation outcome.
func (m *ServiceMetrics) RecordOperation(success bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalOperations++
	if success {
		m.SuccessfulOperations++
	} else {
		m.FailedOperations++
	}
	m.LastUpdated = time.Now()
}

// IncrementCounter increments a named counter.
func (m *ServiceMetrics) IncrementCounter(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.Counters[key]++
	m.LastUpdated = time.Now()
}

// AddToCounter adds delta to a named counter.
func (m *ServiceMetrics) AddToCounter(key string, delta int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.Counters[key] += delta
	m.LastUpdated = time.Now()
}

// GetSuccessRate returns the success rate as a percentage.
func (m *ServiceMetrics) GetSuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalOperations == 0 {
		return 0.0
	}
	return float64(m.SuccessfulOperations) / float64(m.TotalOperations) * 100.0
}

// Snapshot returns a thread-safe copy of the current state.
func (m *ServiceMetrics) Snapshot() ServiceMetrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	counters := make(map[string]int64, len(m.Counters))
	for k, v := range m.Counters {
		counters[k] = v
	}
	return ServiceMetrics{
		ServiceName:          m.ServiceName,
		TotalOperations:      m.TotalOperations,
		SuccessfulOperations: m.SuccessfulOperations,
		FailedOperations:     m.FailedOperations,
		LastUpdated:          m.LastUpdated,
		Counters:             counters,
	}
}

// LogSummary logs a metrics summary.
func (m *ServiceMetrics) LogSummary() {
	snapshot := m.Snapshot()
	logrus.WithFields(logrus.Fields{
		"service_name":          snapshot.ServiceName,
		"total_operations":      snapshot.TotalOperations,
		"successful_operations": snapshot.SuccessfulOperations,
		"failed_operations":     snapshot.FailedOperations,
		"success_rate":          m.GetSuccessRate(),
		"counters":              snapshot.Counters,
		"last_updated":          snapshot.LastUpdated,
	}).Info("Service metrics summary")
}
