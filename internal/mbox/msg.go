// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mbox

import (
	"encoding/binary"
	"fmt"
)

type Tag uint32

// VideoCore property tags for GPU memory management.
const (
	TagAllocate Tag = 0x0003000c
	TagLock     Tag = 0x0003000d
	TagUnlock   Tag = 0x0003000e
	TagFree     Tag = 0x0003000f
)

const (
	RequestCode   = 0x00000000
	ResponseOK    = 0x80000000
	ResponseError = 0x80000001

	// Set by firmware in a tag's request/response word once processed;
	// the low bits give the response length in bytes.
	TagResponse = 1 << 31

	EndTag = 0
)

// Word offsets of the single-tag property buffer.
const (
	offSize = iota
	offCode
	offTag
	offValueSize
	offTagCode
	offValue
)

var tagName = map[Tag]string{
	TagAllocate: "allocate",
	TagLock:     "lock",
	TagUnlock:   "unlock",
	TagFree:     "free",
}

func (t Tag) String() string {
	if s, found := tagName[t]; found {
		return s
	}
	return fmt.Sprintf("tag(%#x)", uint32(t))
}

// Message is a single-tag property buffer:
//
//	[total_size, request_code, tag, value_size, tag_code, values..., end_tag]
type Message []uint32

// NewMessage returns a request for the given tag with a value buffer of
// nvalue words, the leading words of which are set from values.
func NewMessage(tag Tag, nvalue int, values ...uint32) Message {
	if len(values) > nvalue {
		nvalue = len(values)
	}
	m := make(Message, offValue+nvalue+1)
	m[offSize] = uint32(len(m) * 4)
	m[offCode] = RequestCode
	m[offTag] = uint32(tag)
	m[offValueSize] = uint32(nvalue * 4)
	m[offTagCode] = RequestCode
	copy(m[offValue:], values)
	m[len(m)-1] = EndTag
	return m
}

func (m Message) Tag() Tag { return Tag(m[offTag]) }

// Values returns the tag value buffer, request or response.
func (m Message) Values() []uint32 {
	return m[offValue : offValue+int(m[offValueSize]/4)]
}

// Response validates the firmware's reply and returns the tag's response
// values.
func (m Message) Response() ([]uint32, error) {
	switch m[offCode] {
	case ResponseOK:
	case ResponseError:
		return nil, fmt.Errorf("%v: firmware could not parse request",
			m.Tag())
	default:
		return nil, fmt.Errorf("%v: unexpected response code %#x",
			m.Tag(), m[offCode])
	}
	if m[offTagCode]&TagResponse == 0 {
		return nil, fmt.Errorf("%v: tag not processed", m.Tag())
	}
	n := int(m[offTagCode]&^TagResponse) / 4
	if v := m.Values(); n > len(v) {
		return nil, fmt.Errorf("%v: truncated response, %d > %d words",
			m.Tag(), n, len(v))
	}
	return m[offValue : offValue+n], nil
}

// Bytes encodes the message as little-endian words, as the firmware
// reads it.
func (m Message) Bytes() []byte {
	b := make([]byte, 4*len(m))
	for i, w := range m {
		binary.LittleEndian.PutUint32(b[4*i:], w)
	}
	return b
}

// Reply fills in a successful response with the given tag values, as the
// firmware would.
func (m Message) Reply(values ...uint32) {
	m[offCode] = ResponseOK
	m[offTagCode] = TagResponse | uint32(4*len(values))
	copy(m.Values(), values)
}

// Fail marks the request as unparsable, as the firmware would.
func (m Message) Fail() { m[offCode] = ResponseError }
