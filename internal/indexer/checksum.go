package indexer

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"syscall"
	"time"

	"fsindex/internal/model"
)

const (
	// ReadBufferSize is the size of the scratch buffer used for checksumming.
	ReadBufferSize = 1024 * 1024

	// MaxReadRetries bounds consecutive retries of an interrupted read.
	MaxReadRetries = 10

	// ReadRetryDelay is the pause before retrying an interrupted read.
	ReadRetryDelay = 100 * time.Millisecond
)

// ChecksumCalculator computes SHA-1 checksums of regular files.
// It never fails: files that cannot be read yield model.ChecksumError.
type ChecksumCalculator struct {
	fsys       Filesystem
	logger     Logger
	clock      Clock
	maxRetries int
	retryDelay time.Duration
	sleep      func(time.Duration)
}

// NewChecksumCalculator creates a calculator reading files through fsys.
func NewChecksumCalculator(fsys Filesystem, logger Logger, clock Clock) *ChecksumCalculator {
	return &ChecksumCalculator{
		fsys:       fsys,
		logger:     logger,
		clock:      clock,
		maxRetries: MaxReadRetries,
		retryDelay: ReadRetryDelay,
		sleep:      time.Sleep,
	}
}

// SetRetryPolicy overrides how interrupted reads are retried. sleep is
// called with delay before every retry.
func (c *ChecksumCalculator) SetRetryPolicy(maxRetries int, delay time.Duration, sleep func(time.Duration)) {
	c.maxRetries = maxRetries
	c.retryDelay = delay
	c.sleep = sleep
}

// Checksum streams the file at path through SHA-1 using buf as the read
// buffer and returns the lowercase hex digest. buf is only used for the
// duration of the call.
func (c *ChecksumCalculator) Checksum(path string, buf []byte) string {
	start := c.clock.Now()
	c.logger.Trace("calculating sha1 checksum", "path", path)

	if len(buf) == 0 {
		buf = make([]byte, ReadBufferSize)
	}

	f, err := c.fsys.Open(path)
	if err != nil {
		c.logger.Warn("could not open file for reading", "path", path, "error", err)
		return model.ChecksumError
	}
	defer f.Close()

	h := sha1.New()
	retries := 0

	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			retries = 0
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if !errors.Is(err, syscall.EINTR) {
				c.logger.Warn("failed while reading file", "path", path, "error", err)
				return model.ChecksumError
			}
			if retries >= c.maxRetries {
				c.logger.Warn("exceeded maximum read retry limit", "path", path, "retries", retries)
				return model.ChecksumError
			}
			retries++
			c.logger.Debug("read interrupted, retrying", "path", path, "attempt", retries, "error", err)
			c.sleep(c.retryDelay)
			continue
		}

		// A zero-length read without an error also ends the stream.
		if n == 0 {
			break
		}
	}

	sum := hex.EncodeToString(h.Sum(nil))
	c.logger.Trace("sha1 checksum calculated", "path", path, "elapsed_ms", c.clock.Now().Sub(start).Milliseconds())
	return sum
}
