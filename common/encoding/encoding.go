// Copyright 2021 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package encoding

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/juju/errors"
)

// MaxBytesLength bounds length prefixes read from a stream. A larger prefix means the stream is corrupted.
const MaxBytesLength = 1 << 30

// WriteMatrix writes matrix to byte stream.
func WriteMatrix(w io.Writer, m [][]float32) error {
	for i := range m {
		if err := binary.Write(w, binary.LittleEndian, m[i]); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// ReadMatrix reads matrix from byte stream. The shape of m must be allocated by the caller.
func ReadMatrix(r io.Reader, m [][]float32) error {
	for i := range m {
		if err := binary.Read(r, binary.LittleEndian, m[i]); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// WriteString writes string to byte stream.
func WriteString(w io.Writer, s string) error {
	return WriteBytes(w, []byte(s))
}

// ReadString reads string from byte stream.
func ReadString(r io.Reader) (string, error) {
	data, err := ReadBytes(r)
	return string(data), err
}

// WriteBytes writes a length-prefixed byte slice to byte stream.
func WriteBytes(w io.Writer, s []byte) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(s))); err != nil {
		return errors.Trace(err)
	}
	if _, err := w.Write(s); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// ReadBytes reads a length-prefixed byte slice from byte stream.
func ReadBytes(r io.Reader) ([]byte, error) {
	var length int32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, errors.Trace(err)
	}
	if length < 0 || length > MaxBytesLength {
		return nil, errors.NotValidf("byte length %d", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}

// WriteGob writes object to byte stream.
func WriteGob(w io.Writer, v interface{}) error {
	buffer := bytes.NewBuffer(nil)
	if err := gob.NewEncoder(buffer).Encode(v); err != nil {
		return errors.Trace(err)
	}
	return WriteBytes(w, buffer.Bytes())
}

// ReadGob read object from byte stream.
func ReadGob(r io.Reader, v interface{}) error {
	data, err := ReadBytes(r)
	if err != nil {
		return err
	}
	return errors.Trace(gob.NewDecoder(bytes.NewReader(data)).Decode(v))
}
