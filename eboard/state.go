package eboard

import "strconv"

// State is a type for the states the handshake passes through
type State byte

const (
	Closed State = iota
	Open
	Configured
	AwaitingReady
	Triggering
	Done
	Failed
)

var stateNames = [...]string{"Closed", "Open", "Configured", "AwaitingReady", "Triggering", "Done", "Failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Outcome is the result of one bounded stage of the handshake
type Outcome byte

const (
	NotRun      Outcome = iota
	Confirmed           // beacon or ACK seen
	TimedOut            // attempts exhausted
	StreamEnded         // zero-length read or I/O error
)

var outcomeNames = [...]string{"NotRun", "Confirmed", "TimedOut", "StreamEnded"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "Outcome(" + strconv.Itoa(int(o)) + ")"
}

// MarshalText lets reports carry readable outcomes in JSON
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// MarshalText lets reports carry readable states in JSON
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
