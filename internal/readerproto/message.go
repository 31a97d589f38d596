package readerproto

import (
	"errors"
	"strconv"
	"strings"

	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

var (
	ErrUnparseable  = errors.New("readerproto: no parameters in request")
	ErrUnrecognized = errors.New("readerproto: request is neither heartbeat nor swipe")
)

// DeviceSNLength is the fixed length of a reader hardware serial.
const DeviceSNLength = 16

// minCardLen: card identifiers must be longer than this.
const minCardLen = 4

type Kind int

const (
	KindHeartbeat Kind = iota + 1
	KindSwipe
)

func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindSwipe:
		return "swipe"
	}
	return "unknown"
}

// Message is one classified request. Exactly one of Heartbeat and Swipe is
// set, matching Kind.
type Message struct {
	Kind      Kind
	Heartbeat *types.HeartbeatRequest
	Swipe     *types.SwipeRequest
	Params    Params
}

// Decode parses and classifies a raw request. Heartbeats take precedence
// over swipes when a request qualifies as both.
func Decode(raw []byte) (Message, error) {
	p := ParseParams(string(raw))
	if len(p) == 0 {
		return Message{}, ErrUnparseable
	}
	return Classify(p)
}

func Classify(p Params) (Message, error) {
	dn := p.Get("dn")
	info := p.Get("info")

	if isTrue(p.Get("heartbeattype")) && len(dn) == DeviceSNLength && info != "" {
		return Message{
			Kind: KindHeartbeat,
			Heartbeat: &types.HeartbeatRequest{
				DeviceSN:  dn,
				Info:      info,
				MachineNo: p.Get("jihao"),
				Status:    p.Get("status"),
			},
			Params: p,
		}, nil
	}

	card := p.Get("card")
	if len(dn) == DeviceSNLength && len(card) > minCardLen && info != "" {
		req := &types.SwipeRequest{
			DeviceSN:  dn,
			Info:      info,
			CardID:    card,
			MachineNo: p.Get("jihao"),
			Status:    p.Get("status"),
		}
		if ct, err := strconv.Atoi(p.Get("cardtype")); err == nil {
			req.CardType = &ct
		}
		return Message{Kind: KindSwipe, Swipe: req, Params: p}, nil
	}

	return Message{Params: p}, ErrUnrecognized
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
