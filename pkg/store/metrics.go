package store

import (
	"io/fs"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingestd_store_op_duration_seconds",
		Help:    "Latency of pebble store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	diskBytes = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ingestd_store_disk_bytes",
		Help: "On-disk size of the pebble store directory",
	}, func() float64 { return float64(DiskUsage()) })
)

func init() {
	prometheus.MustRegister(opDuration)
	prometheus.MustRegister(diskBytes)
}

func observe(op string, start time.Time) {
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// DiskUsage returns the best-effort total bytes on disk under the store
// path, or zero when the store is not opened.
func DiskUsage() uint64 {
	if Client == nil || StorePath == "" {
		return 0
	}
	var total uint64
	_ = filepath.WalkDir(StorePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		total += uint64(fi.Size())
		return nil
	})
	return total
}
