package readerproto

import (
	"strconv"
	"strings"

	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

const (
	displaySeconds = 10
	beepSuccess    = 5
	beepFailure    = 7

	voiceSuccess = "[v8]刷卡成功"

	msgSuccess       = "{成功}"
	msgOutsideWindow = "{错误}不在允许的用餐时间"
	msgCardNotFound  = "{错误}卡号不存在"
	msgNotEntitled   = "{失败}卡片未激活"
	msgInternal      = "{错误}系统异常"
)

// Response is the positional reply record:
//
//	Response=1,<info>,<display>,<seconds>,<beep>,<voice>[,<relay>...]
//
// Display and Voice are written as given; builders escape them.
type Response struct {
	Info    string
	Display string
	Seconds int
	Beep    int
	Voice   string
	Relays  []string
}

func (r Response) String() string {
	var b strings.Builder
	b.WriteString("Response=1,")
	b.WriteString(r.Info)
	b.WriteByte(',')
	b.WriteString(r.Display)
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(r.Seconds))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(r.Beep))
	b.WriteByte(',')
	b.WriteString(r.Voice)
	for _, f := range r.Relays {
		b.WriteByte(',')
		b.WriteString(f)
	}
	return b.String()
}

// Encode returns the bytes written back to the reader.
func (r Response) Encode() []byte {
	return EncodeWire(r.String())
}

// HeartbeatAck echoes info with no display, tone or voice.
func HeartbeatAck(info string) Response {
	return Response{Info: info, Relays: []string{""}}
}

// ForOutcome builds the reply for a decided swipe. The cardholder's
// identity and unit are shown on success and sent as raw GBK.
func ForOutcome(info string, out types.SwipeOutcome) Response {
	if out.Kind == types.OutcomeConsumed {
		display := Escape(msgSuccess)
		if out.Account != nil {
			display += out.Account.Identity + " " + out.Account.Unit
		}
		return Response{
			Info:    info,
			Display: display,
			Seconds: displaySeconds,
			Beep:    beepSuccess,
			Voice:   Escape(voiceSuccess),
			Relays:  []string{"0", "0"},
		}
	}
	return Reject(info, out.Kind)
}

// Reject is the single rejection encoding shared by every failure kind.
func Reject(info string, kind types.OutcomeKind) Response {
	return Response{
		Info:    info,
		Display: Escape(rejectMessage(kind)),
		Seconds: displaySeconds,
		Beep:    beepFailure,
		Relays:  []string{"0", "0"},
	}
}

func rejectMessage(kind types.OutcomeKind) string {
	switch kind {
	case types.OutcomeOutsideWindow:
		return msgOutsideWindow
	case types.OutcomeCardNotFound:
		return msgCardNotFound
	case types.OutcomeNotEntitled:
		return msgNotEntitled
	}
	return msgInternal
}
