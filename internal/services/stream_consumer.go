package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	types "github.com/fintly/advisor-backend/internal/domain/chat"
	apperr "github.com/fintly/advisor-backend/internal/pkg/errors"
)

// StreamState is the consumer's position in the frame protocol.
type StreamState int

const (
	StateReadingFrame StreamState = iota
	StateDone
	StateError
)

const doneSentinel = "[DONE]"

// streamFrame is one parsed protocol frame. Side-channel fields may ride on
// any frame, including the terminal one.
type streamFrame struct {
	Content              string                     `json:"content"`
	Done                 bool                       `json:"done"`
	Error                string                     `json:"error"`
	ProfileUpdate        *types.ProfileUpdateIntent `json:"profile_update"`
	RequiresConfirmation bool                       `json:"requires_confirmation"`
}

// StreamResult is the consumer's terminal output.
type StreamResult struct {
	Content              string
	Completed            bool
	ProfileUpdate        *types.ProfileUpdateIntent
	RequiresConfirmation bool
}

// StreamConsumer reassembles the backend's line-delimited frame protocol
// from arbitrary byte chunks. Partial lines are buffered across feeds and
// unparsable lines are skipped; only an explicit error frame aborts.
type StreamConsumer struct {
	onDelta func(accumulated string)

	state   StreamState
	partial []byte
	content strings.Builder
	err     error

	proposal             *types.ProfileUpdateIntent
	requiresConfirmation bool
}

// NewStreamConsumer wires the delta callback invoked with the accumulated
// content after every content frame.
func NewStreamConsumer(onDelta func(accumulated string)) *StreamConsumer {
	return &StreamConsumer{onDelta: onDelta, state: StateReadingFrame}
}

func (c *StreamConsumer) State() StreamState { return c.state }

// Feed consumes one transport chunk. Frame boundaries may fall anywhere,
// including mid-rune; the trailing partial line waits for the next feed.
func (c *StreamConsumer) Feed(chunk []byte) error {
	if c.state == StateError {
		return c.err
	}
	if c.state == StateDone {
		// Late bytes after the sentinel are ignored.
		return nil
	}

	c.partial = append(c.partial, chunk...)
	for {
		idx := bytes.IndexByte(c.partial, '\n')
		if idx < 0 {
			return nil
		}
		line := c.partial[:idx]
		c.partial = c.partial[idx+1:]
		if err := c.consumeLine(line); err != nil {
			return err
		}
		if c.state != StateReadingFrame {
			return nil
		}
	}
}

// Finish flushes any trailing partial line and returns the terminal result.
// A stream that ended without the sentinel yields Completed=false.
func (c *StreamConsumer) Finish() (StreamResult, error) {
	if c.state == StateReadingFrame && len(c.partial) > 0 {
		line := c.partial
		c.partial = nil
		if err := c.consumeLine(line); err != nil {
			return StreamResult{}, err
		}
	}
	if c.state == StateError {
		return StreamResult{}, c.err
	}
	return StreamResult{
		Content:              c.content.String(),
		Completed:            c.state == StateDone,
		ProfileUpdate:        c.proposal,
		RequiresConfirmation: c.requiresConfirmation,
	}, nil
}

func (c *StreamConsumer) consumeLine(raw []byte) error {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 {
		return nil
	}
	if string(line) == doneSentinel {
		c.state = StateDone
		return nil
	}

	var frame streamFrame
	if err := json.Unmarshal(line, &frame); err != nil {
		// Malformed lines are dropped rather than aborting the stream.
		return nil
	}

	if frame.ProfileUpdate != nil {
		c.proposal = frame.ProfileUpdate
	}
	if frame.RequiresConfirmation {
		c.requiresConfirmation = true
	}

	if frame.Error != "" {
		c.state = StateError
		c.err = fmt.Errorf("%w: %s", apperr.ErrStreamTransport, frame.Error)
		return c.err
	}
	if frame.Content != "" {
		c.content.WriteString(frame.Content)
		if c.onDelta != nil {
			c.onDelta(c.content.String())
		}
	}
	if frame.Done {
		c.state = StateDone
	}
	return nil
}
