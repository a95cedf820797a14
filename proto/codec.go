package proto

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Messages travel as a varint length prefix followed by the serialized body.

const MaxMessageSize = 1 << 24

var ErrMessageTooLarge = errors.New("message exceeds maximum size")

type Marshaler interface {
	Marshal() []byte
}

type Unmarshaler interface {
	Unmarshal(data []byte) error
}

func WriteMessage(w io.Writer, m Marshaler) error {
	body := m.Marshal()
	if len(body) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	var prefix [binary.MaxVarintLen32]byte
	n := binary.PutUvarint(prefix[:], uint64(len(body)))
	if _, err := w.Write(prefix[:n]); err != nil {
		return fmt.Errorf("write message length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write message body: %w", err)
	}
	return nil
}

func ReadMessage(r *bufio.Reader, m Unmarshaler) error {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return err
	}
	if size > MaxMessageSize {
		return ErrMessageTooLarge
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read message body: %w", err)
	}
	return m.Unmarshal(body)
}
