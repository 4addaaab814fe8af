package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RetentionConfig controls the periodic pruning of old snapshots.
type RetentionConfig struct {
	Interval time.Duration // time between runs (default 24h)
	MaxAge   time.Duration // snapshots older than this are pruned (default 90 days)
	Enabled  bool
}

// DefaultRetentionConfig returns the default retention settings.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Interval: 24 * time.Hour,
		MaxAge:   90 * 24 * time.Hour,
		Enabled:  true,
	}
}

// RetentionResult holds the outcome of one pruning run.
type RetentionResult struct {
	StartTime time.Time
	EndTime   time.Time
	Scanned   int
	Pruned    int
	Errors    []string
}

// RetentionJob periodically deletes snapshots past their retention age.
type RetentionJob struct {
	service *Service
	logger  *slog.Logger

	mu         sync.Mutex
	config     RetentionConfig
	running    bool
	stopChan   chan struct{}
	wg         sync.WaitGroup
	lastRun    time.Time
	lastResult *RetentionResult
}

// NewRetentionJob creates a retention job. Zero config fields fall back to
// the defaults.
func NewRetentionJob(service *Service, config RetentionConfig, logger *slog.Logger) *RetentionJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultRetentionConfig().Interval
	}
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultRetentionConfig().MaxAge
	}
	return &RetentionJob{
		service: service,
		config:  config,
		logger:  logger,
	}
}

// Start launches the background loop. Starting a disabled or already
// running job is a no-op.
func (j *RetentionJob) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running || !j.config.Enabled {
		return
	}
	j.running = true
	j.stopChan = make(chan struct{})

	j.wg.Add(1)
	go j.loop()
}

// Stop halts the background loop and waits for a run in flight.
func (j *RetentionJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	close(j.stopChan)
	j.mu.Unlock()

	j.wg.Wait()
}

// IsRunning reports whether the background loop is active.
func (j *RetentionJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// LastResult returns the result of the most recent run, or nil.
func (j *RetentionJob) LastResult() *RetentionResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastResult
}

// UpdateConfig replaces the retention settings for subsequent runs.
func (j *RetentionJob) UpdateConfig(config RetentionConfig) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if config.Interval <= 0 {
		config.Interval = DefaultRetentionConfig().Interval
	}
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultRetentionConfig().MaxAge
	}
	j.config = config
}

func (j *RetentionJob) loop() {
	defer j.wg.Done()

	j.mu.Lock()
	interval := j.config.Interval
	j.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			result := j.RunOnce(ctx)
			cancel()
			j.logger.Info("snapshot retention run finished",
				slog.Int("scanned", result.Scanned),
				slog.Int("pruned", result.Pruned),
				slog.Int("errors", len(result.Errors)),
			)
		}
	}
}

// RunOnce scans all snapshots and deletes those older than MaxAge.
func (j *RetentionJob) RunOnce(ctx context.Context) *RetentionResult {
	j.mu.Lock()
	maxAge := j.config.MaxAge
	j.mu.Unlock()

	result := &RetentionResult{StartTime: time.Now()}
	cutoff := result.StartTime.Add(-maxAge)

	snapshots, err := j.service.List(ctx, "")
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.EndTime = time.Now()
		j.record(result)
		return result
	}
	result.Scanned = len(snapshots)

	var expired []string
	for _, snap := range snapshots {
		if !snap.LastModified.IsZero() && snap.LastModified.Before(cutoff) {
			expired = append(expired, snap.Key)
		}
	}

	if len(expired) > 0 {
		pruned, err := j.service.Delete(ctx, expired)
		result.Pruned = pruned
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	result.EndTime = time.Now()
	j.record(result)
	return result
}

func (j *RetentionJob) record(result *RetentionResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastRun = result.StartTime
	j.lastResult = result
}
