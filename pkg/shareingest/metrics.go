// shareimport - An attachment import pipeline for end-to-end encrypted messengers.
// Copyright (C) 2026 shareimport contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package shareingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects pipeline counters. All methods are safe on a nil
// receiver, so metrics stay strictly optional.
type Metrics struct {
	importsTotal      *prometheus.CounterVec
	attachmentsBuilt  *prometheus.CounterVec
	importDuration    prometheus.Histogram
	transcodeDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		importsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shareimport_imports_total",
			Help: "Number of import operations by result",
		}, []string{"result"}),
		attachmentsBuilt: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shareimport_attachments_built_total",
			Help: "Number of attachments built by item kind",
		}, []string{"kind"}),
		importDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shareimport_import_seconds",
			Help:    "Time spent on whole import operations",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		transcodeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shareimport_transcode_seconds",
			Help:    "Time spent recompressing videos",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

func (m *Metrics) ImportFinished(err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.importsTotal.WithLabelValues(result).Inc()
	m.importDuration.Observe(duration.Seconds())
}

func (m *Metrics) AttachmentBuilt(kind ItemKind) {
	if m == nil {
		return
	}
	m.attachmentsBuilt.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) TranscodeFinished(duration time.Duration) {
	if m == nil {
		return
	}
	m.transcodeDuration.Observe(duration.Seconds())
}
