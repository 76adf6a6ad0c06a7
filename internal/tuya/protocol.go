package tuya

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"
)

// Version is a Tuya local protocol version as the device announces it.
type Version string

const (
	Version31 Version = "3.1"
	Version32 Version = "3.2"
	Version33 Version = "3.3"
)

// ParseVersion maps a configured protocol number to a supported Version.
// 3.4 and later negotiate a session key and are not supported.
func ParseVersion(v float64) (Version, error) {
	version := Version(strconv.FormatFloat(v, 'f', 1, 64))
	switch version {
	case Version31, Version32, Version33:
		return version, nil
	default:
		return "", fmt.Errorf("unsupported protocol version %s (supported: 3.1, 3.2, 3.3)", version)
	}
}

type CommandType uint32

const (
	CommandControl   CommandType = 7
	CommandStatus    CommandType = 8
	CommandHeartBeat CommandType = 9
	CommandDPQuery   CommandType = 10
)

const (
	framePrefix   uint32 = 0x000055AA
	frameSuffix   uint32 = 0x0000AA55
	headerLen            = 16
	trailerLen           = 8
	versionPadLen        = 12
	v31SignLen           = 16
)

// Message is one 55AA frame. Retcode is only sent by the device.
type Message struct {
	Seq        uint32
	Command    CommandType
	HasRetcode bool
	Retcode    uint32
	Payload    []byte
}

func encodeFrame(msg Message) []byte {
	body := &bytes.Buffer{}
	if msg.HasRetcode {
		_ = binary.Write(body, binary.BigEndian, msg.Retcode)
	}
	body.Write(msg.Payload)

	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.BigEndian, framePrefix)
	_ = binary.Write(buf, binary.BigEndian, msg.Seq)
	_ = binary.Write(buf, binary.BigEndian, uint32(msg.Command))
	_ = binary.Write(buf, binary.BigEndian, uint32(body.Len()+trailerLen))
	buf.Write(body.Bytes())
	_ = binary.Write(buf, binary.BigEndian, crc32.ChecksumIEEE(buf.Bytes()))
	_ = binary.Write(buf, binary.BigEndian, frameSuffix)
	return buf.Bytes()
}

type frameDecoder struct {
	buffer []byte
}

// Feed buffers data and returns every complete frame. Bytes before a frame
// prefix are skipped.
func (d *frameDecoder) Feed(data []byte) ([]Message, error) {
	d.buffer = append(d.buffer, data...)
	var messages []Message
	for {
		start := bytes.Index(d.buffer, prefixBytes())
		if start < 0 {
			if len(d.buffer) > 3 {
				d.buffer = d.buffer[len(d.buffer)-3:]
			}
			return messages, nil
		}
		d.buffer = d.buffer[start:]
		if len(d.buffer) < headerLen {
			return messages, nil
		}
		length := int(binary.BigEndian.Uint32(d.buffer[12:16]))
		if length < trailerLen {
			d.buffer = d.buffer[4:]
			continue
		}
		if len(d.buffer) < headerLen+length {
			return messages, nil
		}
		frame := d.buffer[:headerLen+length]
		d.buffer = d.buffer[headerLen+length:]
		msg, err := decodeFrame(frame)
		if err != nil {
			return messages, err
		}
		messages = append(messages, msg)
	}
}

func prefixBytes() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, framePrefix)
	return b
}

func decodeFrame(frame []byte) (Message, error) {
	if len(frame) < headerLen+trailerLen {
		return Message{}, errors.New("frame too short")
	}
	trailer := frame[len(frame)-trailerLen:]
	if binary.BigEndian.Uint32(trailer[4:]) != frameSuffix {
		return Message{}, errors.New("missing frame suffix")
	}
	checksum := binary.BigEndian.Uint32(trailer[:4])
	if crc32.ChecksumIEEE(frame[:len(frame)-trailerLen]) != checksum {
		return Message{}, errors.New("checksum mismatch")
	}

	msg := Message{
		Seq:     binary.BigEndian.Uint32(frame[4:8]),
		Command: CommandType(binary.BigEndian.Uint32(frame[8:12])),
	}
	data := frame[headerLen : len(frame)-trailerLen]
	// Device frames lead with a return code; its upper bytes are always zero.
	if len(data) >= 4 && binary.BigEndian.Uint32(data[:4])&0xFFFFFF00 == 0 {
		msg.HasRetcode = true
		msg.Retcode = binary.BigEndian.Uint32(data[:4])
		data = data[4:]
	}
	if len(data) > 0 {
		msg.Payload = append([]byte{}, data...)
	}
	return msg, nil
}

// sealPayload turns a JSON request into the frame payload for version.
func sealPayload(version Version, command CommandType, plaintext []byte, localKey string) ([]byte, error) {
	if version == Version31 && command != CommandControl {
		return plaintext, nil
	}
	c, err := newLocalCipher(localKey)
	if err != nil {
		return nil, err
	}
	encrypted := c.seal(plaintext)
	if version == Version31 {
		encoded := base64.StdEncoding.EncodeToString(encrypted)
		return []byte(string(version) + signV31(encoded, localKey) + encoded), nil
	}
	if !needsVersionHeader(command) {
		return encrypted, nil
	}
	out := make([]byte, 0, len(version)+versionPadLen+len(encrypted))
	out = append(out, version...)
	out = append(out, make([]byte, versionPadLen)...)
	return append(out, encrypted...), nil
}

func needsVersionHeader(command CommandType) bool {
	switch command {
	case CommandDPQuery, CommandHeartBeat:
		return false
	default:
		return true
	}
}

// openPayload reverses sealPayload for a device frame. Plain JSON is passed
// through as 3.1 devices and some error replies are not encrypted.
func openPayload(version Version, payload []byte, localKey string) ([]byte, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	c, err := newLocalCipher(localKey)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(payload, []byte(version)) {
		payload = payload[len(version):]
		if version == Version31 {
			if len(payload) < v31SignLen {
				return nil, errors.New("short 3.1 payload")
			}
			encrypted, err := base64.StdEncoding.DecodeString(string(payload[v31SignLen:]))
			if err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
			return c.open(encrypted)
		}
		if len(payload) < versionPadLen {
			return nil, errors.New("short versioned payload")
		}
		payload = payload[versionPadLen:]
	}
	if len(payload) == 0 {
		return nil, nil
	}
	if version == Version31 {
		return payload, nil
	}
	plaintext, err := c.open(payload)
	if err != nil && payload[0] == '{' {
		return payload, nil
	}
	return plaintext, err
}
