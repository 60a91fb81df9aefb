// Package live defines the frames exchanged on the live code channel.
// These types are shared between the server session handler and the client SDK.
//
// Every frame is a flat JSON object whose "type" field selects the kind.
// The set of kinds is closed; Decode maps anything else to Unknown.
package live

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/codedrop-io/codedrop/internal/domain/code"
)

// Type is the "type" discriminator of a frame.
type Type string

const (
	// Client -> Server frame types.
	TypeAuth        Type = "auth"
	TypePing        Type = "ping"
	TypeClaimResult Type = "claim_result"

	// Server -> Client frame types.
	TypeAuthSuccess Type = "auth_success"
	TypeAuthError   Type = "auth_error"
	TypeNewCode     Type = "new_code"
	TypeTurboState  Type = "turbo_state"
	TypePong        Type = "pong"
	TypeClaimAck    Type = "claim_ack"
)

// Frame is implemented by every frame kind.
type Frame interface {
	Kind() Type
}

// CodePayload is the wire form of a code.
type CodePayload struct {
	Token            string `json:"token"`
	Value            string `json:"value,omitempty"`
	Limit            string `json:"limit,omitempty"`
	WagerRequirement string `json:"wagerRequirement,omitempty"`
	Timeline         string `json:"timeline,omitempty"`
	Source           string `json:"source,omitempty"`
	Timestamp        int64  `json:"timestamp"` // unix millis
}

// FromCode converts a code to its wire form.
func FromCode(c code.Code) CodePayload {
	return CodePayload{
		Token:            c.Token,
		Value:            c.Value,
		Limit:            c.ClaimLimit,
		WagerRequirement: c.WagerRequirement,
		Timeline:         c.Timeline,
		Source:           string(c.Source),
		Timestamp:        c.ObservedAt.UnixMilli(),
	}
}

// FromCodes converts codes in order.
func FromCodes(codes []code.Code) []CodePayload {
	out := make([]CodePayload, 0, len(codes))
	for _, c := range codes {
		out = append(out, FromCode(c))
	}
	return out
}

// ObservedAt returns the observation time carried by the payload.
func (p CodePayload) ObservedAt() time.Time {
	return time.UnixMilli(p.Timestamp).UTC()
}

// Auth is the first frame a client sends.
type Auth struct {
	Type  Type   `json:"type"`
	Token string `json:"token"`
}

// AuthSuccess activates the session and carries the cache snapshot.
type AuthSuccess struct {
	Type           Type          `json:"type"`
	AccountID      string        `json:"accountId"`
	TurboMode      bool          `json:"turboMode"`
	PollIntervalMs int64         `json:"pollIntervalMs"`
	RecentCodes    []CodePayload `json:"recentCodes"`
}

// AuthError is sent before the server closes an unauthenticated session.
type AuthError struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

// NewCode pushes a newly observed code.
type NewCode struct {
	Type Type        `json:"type"`
	Code CodePayload `json:"code"`
}

// TurboState announces a change of the polling recommendation.
type TurboState struct {
	Type           Type  `json:"type"`
	Enabled        bool  `json:"enabled"`
	PollIntervalMs int64 `json:"pollIntervalMs"`
}

// Ping is the client heartbeat.
type Ping struct {
	Type      Type   `json:"type"`
	AccountID string `json:"accountId,omitempty"`
}

// Pong answers a Ping.
type Pong struct {
	Type      Type  `json:"type"`
	Timestamp int64 `json:"timestamp"`
}

// ClaimResult reports the outcome of a claim attempt made by the client.
type ClaimResult struct {
	Type    Type   `json:"type"`
	Code    string `json:"code"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Value   string `json:"value,omitempty"`
	Source  string `json:"source,omitempty"`
}

// ClaimAck answers a ClaimResult. Applied is false when an earlier outcome
// was already on record; Result and Reason are always the recorded ones.
type ClaimAck struct {
	Type    Type   `json:"type"`
	Code    string `json:"code"`
	Applied bool   `json:"applied"`
	Result  string `json:"result"`
	Reason  string `json:"reason,omitempty"`
}

// Unknown is returned by Decode for a frame type outside the known set.
type Unknown struct {
	Type Type `json:"type"`
}

func (Auth) Kind() Type        { return TypeAuth }
func (AuthSuccess) Kind() Type { return TypeAuthSuccess }
func (AuthError) Kind() Type   { return TypeAuthError }
func (NewCode) Kind() Type     { return TypeNewCode }
func (TurboState) Kind() Type  { return TypeTurboState }
func (Ping) Kind() Type        { return TypePing }
func (Pong) Kind() Type        { return TypePong }
func (ClaimResult) Kind() Type { return TypeClaimResult }
func (ClaimAck) Kind() Type    { return TypeClaimAck }
func (u Unknown) Kind() Type   { return u.Type }

// Encode marshals a frame, stamping its type field.
func Encode(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case Auth:
		v.Type = TypeAuth
		return json.Marshal(v)
	case AuthSuccess:
		v.Type = TypeAuthSuccess
		if v.RecentCodes == nil {
			v.RecentCodes = []CodePayload{}
		}
		return json.Marshal(v)
	case AuthError:
		v.Type = TypeAuthError
		return json.Marshal(v)
	case NewCode:
		v.Type = TypeNewCode
		return json.Marshal(v)
	case TurboState:
		v.Type = TypeTurboState
		return json.Marshal(v)
	case Ping:
		v.Type = TypePing
		return json.Marshal(v)
	case Pong:
		v.Type = TypePong
		return json.Marshal(v)
	case ClaimResult:
		v.Type = TypeClaimResult
		return json.Marshal(v)
	case ClaimAck:
		v.Type = TypeClaimAck
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("cannot encode frame of type %T", f)
	}
}

// MustEncode is Encode for frames built from known-good values.
func MustEncode(f Frame) []byte {
	b, err := Encode(f)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses a frame. A well-formed object with an unrecognised type
// yields Unknown and no error.
func Decode(data []byte) (Frame, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}

	var (
		f   Frame
		err error
	)
	switch head.Type {
	case TypeAuth:
		f, err = decodeAs[Auth](data)
	case TypeAuthSuccess:
		f, err = decodeAs[AuthSuccess](data)
	case TypeAuthError:
		f, err = decodeAs[AuthError](data)
	case TypeNewCode:
		f, err = decodeAs[NewCode](data)
	case TypeTurboState:
		f, err = decodeAs[TurboState](data)
	case TypePing:
		f, err = decodeAs[Ping](data)
	case TypePong:
		f, err = decodeAs[Pong](data)
	case TypeClaimResult:
		f, err = decodeAs[ClaimResult](data)
	case TypeClaimAck:
		f, err = decodeAs[ClaimAck](data)
	default:
		return Unknown{Type: head.Type}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s frame: %w", head.Type, err)
	}
	return f, nil
}

func decodeAs[T Frame](data []byte) (Frame, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
