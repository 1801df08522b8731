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
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

const npyMagic = "\x93NUMPY"

var (
	npyDescr   = regexp.MustCompile(`'descr':\s*'([^']*)'`)
	npyFortran = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	npyShape   = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

// LoadEmbeddings reads a two-dimensional float matrix saved by numpy.save. Little-endian float32 and float64
// arrays in C order are supported. Rows are returned as float32 vectors.
func LoadEmbeddings(path string) ([][]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	embeddings, err := ReadNpy(bufio.NewReader(file))
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read %s", path)
	}
	return embeddings, nil
}

// ReadNpy decodes a two-dimensional float matrix in NumPy .npy format.
func ReadNpy(r io.Reader) ([][]float32, error) {
	magic := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, errors.Trace(err)
	}
	if string(magic[:len(npyMagic)]) != npyMagic {
		return nil, errors.NotValidf("npy magic")
	}
	var headerLen int
	switch major := magic[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, errors.Trace(err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, errors.Trace(err)
		}
		headerLen = int(n)
	default:
		return nil, errors.NotSupportedf("npy version %d", major)
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, errors.Trace(err)
	}
	descr, rows, cols, err := parseNpyHeader(string(header))
	if err != nil {
		return nil, errors.Trace(err)
	}

	matrix := make([][]float32, rows)
	switch descr {
	case "<f4":
		for i := range matrix {
			matrix[i] = make([]float32, cols)
			if err := binary.Read(r, binary.LittleEndian, matrix[i]); err != nil {
				return nil, errors.Annotatef(err, "failed to read row %d", i)
			}
		}
	case "<f8":
		row := make([]float64, cols)
		for i := range matrix {
			if err := binary.Read(r, binary.LittleEndian, row); err != nil {
				return nil, errors.Annotatef(err, "failed to read row %d", i)
			}
			matrix[i] = make([]float32, cols)
			for j, v := range row {
				if math.Abs(v) > math.MaxFloat32 {
					return nil, errors.NotValidf("value %v at (%d, %d) out of float32 range", v, i, j)
				}
				matrix[i][j] = float32(v)
			}
		}
	default:
		return nil, errors.NotSupportedf("npy dtype %s", descr)
	}
	return matrix, nil
}

func parseNpyHeader(header string) (descr string, rows, cols int, err error) {
	match := npyDescr.FindStringSubmatch(header)
	if match == nil {
		return "", 0, 0, errors.NotValidf("npy header without descr")
	}
	descr = match[1]
	match = npyFortran.FindStringSubmatch(header)
	if match == nil {
		return "", 0, 0, errors.NotValidf("npy header without fortran_order")
	}
	if match[1] == "True" {
		return "", 0, 0, errors.NotSupportedf("fortran order")
	}
	match = npyShape.FindStringSubmatch(header)
	if match == nil {
		return "", 0, 0, errors.NotValidf("npy header without shape")
	}
	var dims []int
	for _, s := range strings.Split(match[1], ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		dim, err := strconv.Atoi(s)
		if err != nil {
			return "", 0, 0, errors.Annotatef(err, "invalid npy shape %s", match[1])
		}
		if dim < 0 {
			return "", 0, 0, errors.NotValidf("npy shape (%s)", match[1])
		}
		dims = append(dims, dim)
	}
	if len(dims) != 2 {
		return "", 0, 0, errors.NotSupportedf("npy shape (%s)", match[1])
	}
	return descr, dims[0], dims[1], nil
}
