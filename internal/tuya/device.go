package tuya

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"
)

const (
	DefaultPort    = 6668
	DefaultTimeout = 5 * time.Second
)

// Config identifies one device on the local network.
type Config struct {
	Address  string
	DeviceID string
	LocalKey string
	Version  Version
	Port     int
	Timeout  time.Duration
}

// Status is a decoded status reply. DPS is nil when the reply had none.
type Status struct {
	DeviceID string
	DPS      map[string]any
}

// DeviceError is an error the device reported: a non-zero return code, an
// error string instead of JSON, or a payload that does not decrypt with the
// local key.
type DeviceError struct {
	Code    uint32
	Message string
}

func (e *DeviceError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	}
	return e.Message
}

// Device talks to one Tuya device over a single lazily opened TCP
// connection. It is not safe for concurrent use.
type Device struct {
	cfg     Config
	conn    net.Conn
	decoder *frameDecoder
	seq     uint32
	now     func() time.Time

	// pending holds decoded frames not yet consumed by a request.
	pending []Message
	// acksControl is set once the device has answered a control write with
	// a control frame. From then on a status push is never taken as an ack.
	acksControl bool
}

func NewDevice(cfg Config) (*Device, error) {
	if cfg.Address == "" {
		return nil, errors.New("tuya device address is required")
	}
	if cfg.DeviceID == "" {
		return nil, errors.New("tuya device id is required")
	}
	if len(cfg.LocalKey) != LocalKeySize {
		return nil, fmt.Errorf("tuya local key must be %d characters", LocalKeySize)
	}
	switch cfg.Version {
	case Version31, Version32, Version33:
	default:
		return nil, fmt.Errorf("unsupported protocol version %q", cfg.Version)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Device{cfg: cfg, now: time.Now}, nil
}

// Status queries all data points. It returns nil, nil when the device closed
// the connection without answering.
func (d *Device) Status(ctx context.Context) (*Status, error) {
	reply, err := d.request(ctx, CommandDPQuery, map[string]any{
		"gwId":  d.cfg.DeviceID,
		"devId": d.cfg.DeviceID,
		"uid":   d.cfg.DeviceID,
		"t":     d.timestamp(),
	})
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	if len(reply) == 0 {
		return nil, nil
	}
	return decodeStatus(reply)
}

// SetValue writes one data point and waits for the device to acknowledge it.
func (d *Device) SetValue(ctx context.Context, index int, value any) error {
	_, err := d.request(ctx, CommandControl, map[string]any{
		"devId": d.cfg.DeviceID,
		"uid":   d.cfg.DeviceID,
		"t":     d.timestamp(),
		"dps":   map[string]any{strconv.Itoa(index): value},
	})
	return err
}

func (d *Device) Close() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	d.decoder = nil
	d.pending = nil
	return err
}

func (d *Device) timestamp() string {
	return strconv.FormatInt(d.now().Unix(), 10)
}

func (d *Device) connect(ctx context.Context) error {
	if d.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: d.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(d.cfg.Address, strconv.Itoa(d.cfg.Port)))
	if err != nil {
		return err
	}
	d.conn = conn
	d.decoder = &frameDecoder{}
	return nil
}

// request sends one command and returns the opened payload of its reply.
// Unrelated frames arriving in between are skipped.
func (d *Device) request(ctx context.Context, command CommandType, body map[string]any) ([]byte, error) {
	plaintext, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	payload, err := sealPayload(d.cfg.Version, command, plaintext, d.cfg.LocalKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}
	if err := d.connect(ctx); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(d.cfg.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := d.conn.SetDeadline(deadline); err != nil {
		_ = d.Close()
		return nil, err
	}

	// Anything still queued answers an earlier request.
	d.pending = nil
	d.seq++
	if _, err := d.conn.Write(encodeFrame(Message{Seq: d.seq, Command: command, Payload: payload})); err != nil {
		_ = d.Close()
		return nil, err
	}

	reply, err := d.await(command, d.seq)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	_ = d.conn.SetDeadline(time.Time{})

	opened, openErr := openPayload(d.cfg.Version, reply.Payload, d.cfg.LocalKey)
	if reply.Retcode != 0 {
		message := "device rejected command"
		if openErr == nil {
			message = replyText(opened, message)
		}
		return nil, &DeviceError{Code: reply.Retcode, Message: message}
	}
	if openErr != nil {
		if isText(reply.Payload) {
			return nil, &DeviceError{Message: replyText(reply.Payload, "")}
		}
		return nil, &DeviceError{Message: fmt.Sprintf("decrypt payload: %v: check device key or version", openErr)}
	}
	return opened, nil
}

// await reads until the reply to the request sent as seq arrives. A control
// write is answered by a control frame echoing seq; control frames with
// another seq are late acks of earlier writes and are skipped. Devices that
// never ack a write only push their new status, so a status push is taken as
// the ack when the deadline passes without one.
func (d *Device) await(command CommandType, seq uint32) (Message, error) {
	var (
		pushed    *Message
		decodeErr error
	)
	buf := make([]byte, 4096)
	for {
		for len(d.pending) > 0 {
			msg := d.pending[0]
			d.pending = d.pending[1:]
			if msg.Command == CommandControl {
				d.acksControl = true
			}
			if command == CommandControl {
				if msg.Command == CommandControl && msg.Seq == seq {
					return msg, nil
				}
				if msg.Command == CommandStatus && pushed == nil {
					pushed = &msg
				}
				continue
			}
			if msg.Command == command {
				return msg, nil
			}
		}
		if decodeErr != nil {
			return Message{}, &DeviceError{Message: fmt.Sprintf("unexpected payload from device: %v", decodeErr)}
		}

		n, err := d.conn.Read(buf)
		if n > 0 {
			var messages []Message
			messages, decodeErr = d.decoder.Feed(buf[:n])
			d.pending = append(d.pending, messages...)
			continue
		}
		if err != nil {
			if pushed != nil && !d.acksControl && errors.Is(err, os.ErrDeadlineExceeded) {
				return *pushed, nil
			}
			return Message{}, err
		}
	}
}

func decodeStatus(reply []byte) (*Status, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(reply), []byte("{")) {
		return nil, &DeviceError{Message: replyText(reply, "unexpected payload from device")}
	}
	var envelope struct {
		DevID string         `json:"devId"`
		DPS   map[string]any `json:"dps"`
	}
	decoder := json.NewDecoder(bytes.NewReader(reply))
	decoder.UseNumber()
	if err := decoder.Decode(&envelope); err != nil {
		return nil, &DeviceError{Message: fmt.Sprintf("invalid status json: %v", err)}
	}
	for id, value := range envelope.DPS {
		envelope.DPS[id] = normalizeNumber(value)
	}
	return &Status{DeviceID: envelope.DevID, DPS: envelope.DPS}, nil
}

// normalizeNumber keeps integral values as int64 so they are not widened to
// floats on the way to the caller.
func normalizeNumber(value any) any {
	number, ok := value.(json.Number)
	if !ok {
		return value
	}
	if i, err := number.Int64(); err == nil {
		return i
	}
	if f, err := number.Float64(); err == nil {
		return f
	}
	return number.String()
}

func replyText(payload []byte, fallback string) string {
	text := string(bytes.TrimSpace(payload))
	if text == "" {
		return fallback
	}
	return text
}

func isText(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	for _, b := range payload {
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}
