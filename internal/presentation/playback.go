package presentation

import "time"

// PlaybackAction is a playback transport command from the operator.
type PlaybackAction string

const (
	PlaybackPlay  PlaybackAction = "play"
	PlaybackPause PlaybackAction = "pause"
	PlaybackSeek  PlaybackAction = "seek"
	PlaybackStop  PlaybackAction = "stop"
)

// PlaybackCommand carries an action plus the target position for seeks.
type PlaybackCommand struct {
	Action PlaybackAction `json:"action"`
	Time   *float64       `json:"time,omitempty"`
}

// Position is a live playback position computed at read time.
type Position struct {
	Time    float64 `json:"time"`
	Playing bool    `json:"playing"`
}

// Apply advances the descriptor through the play/pause/seek state machine.
// Stop is handled by the caller (the descriptor is discarded, not updated).
// The position is never ticked forward by a timer; it is derived from the
// anchor on read, so repeated Apply/Position calls cannot accumulate drift.
func (d *PlaybackDescriptor) Apply(cmd PlaybackCommand, now time.Time) {
	switch cmd.Action {
	case PlaybackPlay:
		if d.Playing {
			return
		}
		t := now
		d.Playing = true
		d.Anchor = &t
	case PlaybackPause:
		if !d.Playing {
			return
		}
		d.Base = d.positionAt(now)
		d.Playing = false
		d.Anchor = nil
	case PlaybackSeek:
		if cmd.Time == nil {
			return
		}
		d.Base = *cmd.Time
		// Re-anchor only while playing; a paused seek just moves the
		// resume point.
		if d.Playing {
			t := now
			d.Anchor = &t
		}
	}
}

// PositionAt derives the live position from the stored triple.
func (d *PlaybackDescriptor) PositionAt(now time.Time) Position {
	return Position{Time: d.positionAt(now), Playing: d.Playing}
}

func (d *PlaybackDescriptor) positionAt(now time.Time) float64 {
	if !d.Playing || d.Anchor == nil {
		return d.Base
	}
	return d.Base + now.Sub(*d.Anchor).Seconds()
}

// validPlayback reports whether cmd is a well-formed command: a known
// action, a seek target when seeking, and no negative positions.
func validPlayback(cmd PlaybackCommand) error {
	switch cmd.Action {
	case PlaybackPlay, PlaybackPause, PlaybackStop:
	case PlaybackSeek:
		if cmd.Time == nil {
			return invalid("playback", "seek requires a time")
		}
		if *cmd.Time < 0 {
			return invalid("playback", "time must not be negative")
		}
	default:
		return invalid("playback", "unknown action "+string(cmd.Action))
	}
	return nil
}
