// Package constants centralizes tunable thresholds shared across the
// orchestrator so a single file documents every magic number.
package constants

import "time"

// Storage operation thresholds
const (
	// MultipartThreshold - files larger than this use multipart/block transfer (100 MB)
	MultipartThreshold = 100 * 1024 * 1024

	// ChunkSize - base size of each chunk for uploads and downloads (32 MB)
	ChunkSize = 32 * 1024 * 1024

	// MinChunkSize - minimum chunk size for transfers (16 MB)
	MinChunkSize = 16 * 1024 * 1024

	// MaxChunkSize - maximum chunk size for transfers (64 MB)
	MaxChunkSize = 64 * 1024 * 1024

	// MinPartSize - AWS S3 minimum part size (5 MB, except last part)
	MinPartSize = 5 * 1024 * 1024

	// MaxS3PartSize - AWS S3 maximum part size (5 GB)
	MaxS3PartSize = 5 * 1024 * 1024 * 1024

	// MaxAzureBlockSize - Azure maximum block size (4000 MB with large block support)
	MaxAzureBlockSize = 4000 * 1024 * 1024

	// MinAzureBlockSize - Azure minimum block size (1 MB for practical purposes)
	MinAzureBlockSize = 1 * 1024 * 1024
)

// Credential refresh intervals for the Drive-API backend/sink.
const (
	// GlobalCredentialRefreshInterval - interval for credential refresh (10 minutes)
	GlobalCredentialRefreshInterval = 10 * time.Minute

	// AzurePeriodicRefreshInterval - periodic refresh for long-running Azure operations (8 minutes)
	AzurePeriodicRefreshInterval = 8 * time.Minute

	// LargeFileThreshold - files larger than this trigger periodic credential refresh (1 GB)
	LargeFileThreshold = 1 * 1024 * 1024 * 1024
)

// Retry configuration, shared by the HTTP and drive-sink retry policies.
const (
	// MaxRetries - maximum number of retries for transient errors
	MaxRetries = 10

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	RetryMaxDelay = 15 * time.Second
)

// DiskSpaceBufferPercent is the additional free space required beyond a
// task's size-hint before admission (15%), to absorb archive/transcode
// intermediates produced by the media pipeline.
const DiskSpaceBufferPercent = 0.15

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// Pipeline worker queues
const (
	// DefaultQueueMultiplier - queue size = workers * multiplier
	DefaultQueueMultiplier = 2

	// MaxQueueSize - absolute maximum queue size to prevent unbounded growth
	MaxQueueSize = 1000
)

// Progress aggregation (spec §4.9)
const (
	// ProgressUpdateInterval - default status_interval between aggregator wakeups
	ProgressUpdateInterval = 4 * time.Second

	// StatusEditMinInterval - floor on chat-transport edits, one per chat per interval
	StatusEditMinInterval = 4 * time.Second
)

// Thread pool sizing
const (
	// AbsoluteMaxThreads - absolute maximum threads allowed
	AbsoluteMaxThreads = 32

	// MemoryPerThreadMB - estimated memory usage per thread (128 MB)
	MemoryPerThreadMB = 128

	// MaxBaselineThreads - maximum baseline threads derived from CPU cores
	MaxBaselineThreads = 16

	// MinThreadsPerFile - minimum threads per file transfer
	MinThreadsPerFile = 1

	// MaxThreadsPerFile - maximum threads per file transfer
	MaxThreadsPerFile = 16
)

// Resource Manager - File Size Thresholds
const (
	SmallFileThreshold  = 100 * 1024 * 1024
	MediumFileThreshold = 500 * 1024 * 1024
	LargeFile1GB        = 1 * 1024 * 1024 * 1024
	LargeFile5GB        = 5 * 1024 * 1024 * 1024
	LargeFile10GB       = 10 * 1024 * 1024 * 1024
)

// Resource Manager - Thread Allocation (Non-AutoScale)
const (
	ThreadsForSmallFiles  = 1
	ThreadsForMediumFiles = 2
	ThreadsForLargeFiles  = 3
)

// Resource Manager - Thread Allocation (AutoScale)
const (
	ThreadsFor500MBto1GB  = 4
	ThreadsFor1GBto5GB    = 8
	ThreadsFor5GBto10GB   = 12
	ThreadsFor10GBPlus    = 16
)

// Resource Manager - Throughput Monitoring
const (
	MaxThroughputSamples     = 10
	MinScaleUpThroughputMBps = 10.0
	MaxScaleUpVarianceMBps   = 2.0
	ScaleDownThresholdPercent = 0.8
)

// System Memory Limits
const (
	MinSystemMemory = 512 * 1024 * 1024
	MaxSystemMemory = 8 * 1024 * 1024 * 1024
)

// Monitoring
const (
	// BackendPollInterval - interval for polling backend driver progress
	BackendPollInterval = 2 * time.Second

	// HealthCheckInterval - interval for system health checks (60 seconds)
	HealthCheckInterval = 60 * time.Second

	// RssPollIntervalDefault - default delay between RSS feed polls
	RssPollIntervalDefault = 10 * time.Minute
)

// HTTP Client Timeouts
const (
	HTTPIdleConnTimeout       = 90 * time.Second
	HTTPTLSHandshakeTimeout   = 60 * time.Second
	HTTPExpectContinueTimeout = 1 * time.Second
	HTTPDialTimeout           = 30 * time.Second
	HTTPDialKeepAlive         = 30 * time.Second
)

// Pipeline and task timeouts
const (
	// PipelineTickerInterval - interval for pipeline progress updates
	PipelineTickerInterval = 2 * time.Second

	// PipelineStateCheckInterval - interval for checking cancellation between stages
	PipelineStateCheckInterval = 500 * time.Millisecond

	// SelectionMenuTimeout - spec §5: interactive file-selection menus default 60s
	SelectionMenuTimeout = 60 * time.Second

	// DriveMetadataTimeout - spec §5: drive-sink metadata fetches use a short bounded retry
	DriveMetadataTimeout = 15 * time.Second
)

// Rate Limiter Timeouts
const (
	RateLimitWarningThreshold = 2 * time.Second
	RateLimitWarningInterval  = 10 * time.Second
	RateLimitLogThreshold     = 5 * time.Second
)

// Task domain limits (spec §3 Data Model)
const (
	// MergeSessionMaxInputs - MergeSession.inputs hard cap
	MergeSessionMaxInputs = 20

	// MergeSessionMaxBytes - MergeSession cumulative estimated size cap (8 GiB)
	MergeSessionMaxBytes = 8 * 1024 * 1024 * 1024

	// TaskIDLength - TaskConfig.id is a random 10-char string
	TaskIDLength = 10

	// SplitOverlapSeconds - overlap applied to each split part's start time
	SplitOverlapSeconds = 3

	// DefaultScreenshotCount - screenshots pipeline stage default count
	DefaultScreenshotCount = 4

	// DefaultSampleVideoSegments - sample-video stage default segment count
	DefaultSampleVideoSegments = 4

	// DefaultSampleVideoSegmentSeconds - sample-video stage default segment length
	DefaultSampleVideoSegmentSeconds = 4 * time.Second
)
