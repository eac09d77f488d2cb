// Package tensorboard writes scalar summaries in the tfevents format so
// epoch metrics can be inspected with standard TensorBoard tooling. Records
// use TFRecord framing (length, masked CRC32-C of the length, payload,
// masked CRC32-C of the payload); payloads are tensorflow.Event protos
// encoded directly with the protobuf wire package.
package tensorboard

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from tensorflow's event.proto and summary.proto.
const (
	eventWallTimeField    = 1
	eventStepField        = 2
	eventFileVersionField = 3
	eventSummaryField     = 5

	summaryValueField     = 1
	valueTagField         = 1
	valueSimpleValueField = 2
)

const fileVersion = "brain.Event:2"

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// maskedCRC is the TFRecord checksum: CRC32-C rotated right by 15 bits plus
// a fixed constant.
func maskedCRC(data []byte) uint32 {
	crc := crc32.Checksum(data, crcTable)
	return ((crc >> 15) | (crc << 17)) + 0xa282ead8
}

// EventWriter appends scalar events to a single tfevents file inside a log
// directory.
type EventWriter struct {
	file *os.File
}

// NewEventWriter creates the log directory if needed, opens a fresh
// tfevents file, and writes the file-version header event.
func NewEventWriter(dir string) (*EventWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create tensorboard dir")
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	name := fmt.Sprintf("events.out.tfevents.%d.%s", time.Now().Unix(), hostname)
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open tfevents file")
	}

	w := &EventWriter{file: file}

	var event []byte
	event = appendWallTime(event, time.Now())
	event = protowire.AppendTag(event, eventFileVersionField, protowire.BytesType)
	event = protowire.AppendString(event, fileVersion)
	if err := w.writeRecord(event); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

// AddScalar emits one scalar data point under tag at the given step.
func (w *EventWriter) AddScalar(tag string, value float64, step int64) error {
	var sv []byte
	sv = protowire.AppendTag(sv, valueTagField, protowire.BytesType)
	sv = protowire.AppendString(sv, tag)
	sv = protowire.AppendTag(sv, valueSimpleValueField, protowire.Fixed32Type)
	sv = protowire.AppendFixed32(sv, math.Float32bits(float32(value)))

	var summary []byte
	summary = protowire.AppendTag(summary, summaryValueField, protowire.BytesType)
	summary = protowire.AppendBytes(summary, sv)

	var event []byte
	event = appendWallTime(event, time.Now())
	event = protowire.AppendTag(event, eventStepField, protowire.VarintType)
	event = protowire.AppendVarint(event, uint64(step))
	event = protowire.AppendTag(event, eventSummaryField, protowire.BytesType)
	event = protowire.AppendBytes(event, summary)

	return w.writeRecord(event)
}

// Flush forces buffered records to disk so no final-epoch data is lost if
// the process exits.
func (w *EventWriter) Flush() error {
	return errors.Wrap(w.file.Sync(), "sync tfevents file")
}

// Close flushes and closes the underlying file.
func (w *EventWriter) Close() error {
	if err := w.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return errors.Wrap(w.file.Close(), "close tfevents file")
}

func appendWallTime(event []byte, t time.Time) []byte {
	wallTime := float64(t.UnixNano()) / 1e9
	event = protowire.AppendTag(event, eventWallTimeField, protowire.Fixed64Type)
	return protowire.AppendFixed64(event, math.Float64bits(wallTime))
}

func (w *EventWriter) writeRecord(payload []byte) error {
	var header [8]byte
	binary.LittleEndian.PutUint64(header[:], uint64(len(payload)))

	record := make([]byte, 0, len(payload)+16)
	record = append(record, header[:]...)
	record = binary.LittleEndian.AppendUint32(record, maskedCRC(header[:]))
	record = append(record, payload...)
	record = binary.LittleEndian.AppendUint32(record, maskedCRC(payload))

	_, err := w.file.Write(record)
	return errors.Wrap(err, "write tfevents record")
}
