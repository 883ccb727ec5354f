/*
Copyright 2025 Memris Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package storage

// Config holds the tuning knobs for one engine instance. Every engine
// owns its own Config; there is no process-wide configuration state.
type Config struct {
	// PageSize is the number of row slots per column page
	// Default: 4096
	PageSize int

	// MaxPages bounds the number of pages a column may allocate.
	// PageSize*MaxPages is the hard row capacity of a table.
	// Default: 65536
	MaxPages int

	// DenseThreshold is the result-density ratio (result size over
	// table row count) above which selection vectors use the dense
	// bitmap representation instead of the sparse sorted list.
	// Default: 0.05
	DenseThreshold float64

	// SeqlockRetries bounds how many times a row read retries against
	// a concurrent writer before escalating to the table read guard.
	// Default: 64
	SeqlockRetries int

	// ParallelScanMinRows is the row count above which full scans are
	// split into chunks and evaluated on the engine worker pool.
	// Default: 65536
	ParallelScanMinRows int

	// ScanWorkers is the size of the engine worker pool used for
	// chunked scans. Default: 4
	ScanWorkers int

	// PlanCacheSize is the number of compiled physical plans kept in
	// the per-engine LRU cache. Default: 256
	PlanCacheSize int
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		PageSize:            4096,
		MaxPages:            65536,
		DenseThreshold:      0.05,
		SeqlockRetries:      64,
		ParallelScanMinRows: 65536,
		ScanWorkers:         4,
		PlanCacheSize:       256,
	}
}
