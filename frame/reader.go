package frame

import (
	"errors"
	"io"

	"github.com/ecmwf/odc-go/errs"
	"github.com/ecmwf/odc-go/internal/options"
)

// readerConfig carries reader construction options.
type readerConfig struct {
	aggregated    bool
	maxAggregated int
}

// ReaderOption configures a Reader.
type ReaderOption = options.Option[*readerConfig]

// WithAggregated groups consecutive frames with identical column sets; a
// group decodes to the vertical concatenation of its frames. Disabled by
// default.
func WithAggregated(aggregated bool) ReaderOption {
	return options.NoError(func(c *readerConfig) {
		c.aggregated = aggregated
	})
}

// WithMaxAggregated bounds the number of frames per aggregation group. Any
// non-positive value means unlimited.
func WithMaxAggregated(n int) ReaderOption {
	return options.NoError(func(c *readerConfig) {
		c.maxAggregated = n
	})
}

// Reader iterates the frames of an ODB-2 stream. Frame headers are parsed
// up front, skipping over each data region; decoding seeks back lazily when
// a frame is asked for its data.
type Reader struct {
	frames []*Frame
}

// NewReader scans src for frames until end of stream. The stream must
// remain readable for as long as decoded output is still being requested.
func NewReader(src io.ReadSeeker, opts ...ReaderOption) (*Reader, error) {
	cfg := &readerConfig{maxAggregated: -1}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	var frames []*Frame
	for {
		f, err := readFrame(src)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if _, err := src.Seek(f.dataEnd(), io.SeekStart); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}

	if cfg.aggregated {
		grouped, err := aggregate(frames, cfg.maxAggregated)
		if err != nil {
			return nil, err
		}
		frames = grouped
	}

	return &Reader{frames: frames}, nil
}

// Frames returns the frames of the stream in file order. With aggregation
// enabled, each element is the head of one compatible group.
func (r *Reader) Frames() []*Frame {
	return r.frames
}

// aggregate groups consecutive frames with matching column sets. An
// incompatible frame starts a new group, as does exceeding maxPerGroup when
// it is positive.
func aggregate(frames []*Frame, maxPerGroup int) ([]*Frame, error) {
	if len(frames) < 2 {
		return frames, nil
	}

	var grouped []*Frame
	var head *Frame
	count := 0

	for _, f := range frames {
		if head != nil && (maxPerGroup <= 0 || count < maxPerGroup) {
			err := head.Append(f)
			if err == nil {
				count++
				continue
			}
			if !errors.Is(err, errs.ErrMismatchedFrames) {
				return nil, err
			}
		}

		head = f
		count = 1
		grouped = append(grouped, f)
	}

	return grouped, nil
}
