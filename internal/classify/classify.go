// Package classify turns free-text server console lines into structured
// activity. The state machine stays independent of any particular game
// server's log format; patterns are supplied per server from configuration.
package classify

import (
	"fmt"
	"regexp"
)

// Kind enumerates what a console line meant, if anything.
type Kind int

const (
	None Kind = iota
	Ready
	PlayerJoined
	PlayerLeft
)

// Event is the classification of a single line. Player is set for
// PlayerJoined/PlayerLeft when the pattern captured a name.
type Event struct {
	Kind   Kind
	Player string
}

// Default patterns match vanilla Minecraft-style server output. They are
// only a starting point; configs override them per server.
const (
	DefaultReadyPattern = `Done \([0-9.,]+s\)!`
	DefaultJoinPattern  = `\]: (\S+) joined the game`
	DefaultLeavePattern = `\]: (\S+) left the game`
)

// Classifier matches lines against ready/join/leave patterns. The zero
// value classifies everything as None.
type Classifier struct {
	ready *regexp.Regexp
	join  *regexp.Regexp
	leave *regexp.Regexp
}

// New compiles a classifier from the given patterns. Empty patterns disable
// the corresponding detection. Join/leave patterns should capture the
// player name in their first group.
func New(readyPat, joinPat, leavePat string) (Classifier, error) {
	var c Classifier
	var err error
	if readyPat != "" {
		if c.ready, err = regexp.Compile(readyPat); err != nil {
			return Classifier{}, fmt.Errorf("ready pattern: %w", err)
		}
	}
	if joinPat != "" {
		if c.join, err = regexp.Compile(joinPat); err != nil {
			return Classifier{}, fmt.Errorf("join pattern: %w", err)
		}
	}
	if leavePat != "" {
		if c.leave, err = regexp.Compile(leavePat); err != nil {
			return Classifier{}, fmt.Errorf("leave pattern: %w", err)
		}
	}
	return c, nil
}

// Default returns a classifier built from the default patterns.
func Default() Classifier {
	c, err := New(DefaultReadyPattern, DefaultJoinPattern, DefaultLeavePattern)
	if err != nil {
		panic(err) // defaults are compile-time constants
	}
	return c
}

// Classify is a pure function over one console line.
func (c Classifier) Classify(line string) Event {
	if c.ready != nil && c.ready.MatchString(line) {
		return Event{Kind: Ready}
	}
	if c.join != nil {
		if m := c.join.FindStringSubmatch(line); m != nil {
			return Event{Kind: PlayerJoined, Player: group1(m)}
		}
	}
	if c.leave != nil {
		if m := c.leave.FindStringSubmatch(line); m != nil {
			return Event{Kind: PlayerLeft, Player: group1(m)}
		}
	}
	return Event{Kind: None}
}

func group1(m []string) string {
	if len(m) > 1 {
		return m[1]
	}
	return ""
}
