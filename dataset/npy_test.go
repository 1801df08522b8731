// Copyright 2025 gorse Project Authors
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
package dataset

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadEmbeddings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.npy")
	matrix := [][]float32{{1, 2, 3}, {4, 5, 6}}
	writeNpy(t, path, matrix)
	embeddings, err := LoadEmbeddings(path)
	assert.NoError(t, err)
	assert.Equal(t, matrix, embeddings)
}

func TestReadNpyFloat64(t *testing.T) {
	header := "{'descr': '<f8', 'fortran_order': False, 'shape': (2, 1), }\n"
	buf := bytes.NewBufferString("\x93NUMPY\x02\x00")
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, uint32(len(header))))
	buf.WriteString(header)
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, []float64{0.5, -2}))
	embeddings, err := ReadNpy(buf)
	assert.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5}, {-2}}, embeddings)
}

func TestReadNpyInvalid(t *testing.T) {
	// wrong magic
	_, err := ReadNpy(bytes.NewBufferString("PK\x03\x04......"))
	assert.Error(t, err)

	for _, header := range []string{
		"{'descr': '<i8', 'fortran_order': False, 'shape': (2, 1), }\n",
		"{'descr': '<f4', 'fortran_order': True, 'shape': (2, 1), }\n",
		"{'descr': '<f4', 'fortran_order': False, 'shape': (2,), }\n",
		"{'descr': '<f4', 'fortran_order': False, 'shape': (-1, 3), }\n",
		"{'descr': '<f8', 'fortran_order': False, 'shape': (2, -3), }\n",
	} {
		buf := bytes.NewBufferString("\x93NUMPY\x01\x00")
		assert.NoError(t, binary.Write(buf, binary.LittleEndian, uint16(len(header))))
		buf.WriteString(header)
		_, err = ReadNpy(buf)
		assert.Error(t, err, header)
	}

	// truncated data
	header := "{'descr': '<f4', 'fortran_order': False, 'shape': (2, 2), }\n"
	buf := bytes.NewBufferString("\x93NUMPY\x01\x00")
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, uint16(len(header))))
	buf.WriteString(header)
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, []float32{1, 2, 3}))
	_, err = ReadNpy(buf)
	assert.Error(t, err)
}
