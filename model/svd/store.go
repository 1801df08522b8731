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
package svd

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/gorse-io/newsrec/base/log"
	"github.com/gorse-io/newsrec/common/encoding"
	"github.com/gorse-io/newsrec/dataset"
	"github.com/gorse-io/newsrec/storage/blob"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const (
	artifactMagic   = "newsrec/svd"
	artifactVersion = 1
	// maxArtifactCells bounds the size of a factor matrix declared by an artifact header.
	maxArtifactCells = 1 << 32
)

// ArtifactName is the name of cached factors of a rank.
func ArtifactName(rank int) string {
	return fmt.Sprintf("svd_%d.bin", rank)
}

// Marshal writes factors followed by the CRC-32 checksum of everything written before it.
func Marshal(w io.Writer, factors *Factors) error {
	checksum := crc32.NewIEEE()
	mw := io.MultiWriter(w, checksum)
	if err := encoding.WriteString(mw, artifactMagic); err != nil {
		return errors.Trace(err)
	}
	header := []int32{
		artifactVersion,
		int32(factors.Rank),
		int32(len(factors.UserFactors)),
		int32(factors.Rank),
		int32(len(factors.ItemFactors)),
		int32(factors.Rank),
	}
	if err := binary.Write(mw, binary.LittleEndian, header); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(mw, factors.UserFactors); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(mw, factors.ItemFactors); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(mw, factors.ExplainedVarianceRatio); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(binary.Write(w, binary.LittleEndian, checksum.Sum32()))
}

// Unmarshal reads factors written by Marshal. Any mismatch of magic, version, shape or checksum is an error.
func Unmarshal(r io.Reader) (*Factors, error) {
	return unmarshal(r, nil)
}

// factorShape is the expected shape of cached factors.
type factorShape struct {
	rank, users, items int
}

// unmarshal reads factors and rejects a header not matching expected before any matrix is allocated.
func unmarshal(r io.Reader, expected *factorShape) (*Factors, error) {
	checksum := crc32.NewIEEE()
	tr := io.TeeReader(r, checksum)
	magic, err := encoding.ReadString(tr)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if magic != artifactMagic {
		return nil, errors.NotValidf("magic %q", magic)
	}
	header := make([]int32, 6)
	if err = binary.Read(tr, binary.LittleEndian, header); err != nil {
		return nil, errors.Trace(err)
	}
	version, rank := header[0], header[1]
	if version != artifactVersion {
		return nil, errors.NotSupportedf("artifact version %d", version)
	}
	for _, shape := range [][2]int32{{header[2], header[3]}, {header[4], header[5]}} {
		if shape[0] < 0 || shape[1] != rank || rank < 1 || int64(shape[0])*int64(shape[1]) > maxArtifactCells {
			return nil, errors.NotValidf("factor shape (%d, %d) of rank %d", shape[0], shape[1], rank)
		}
	}
	if expected != nil && (int(rank) != expected.rank || int(header[2]) != expected.users ||
		int(header[4]) != expected.items) {
		return nil, errors.NotValidf("latent factors of shape (%d, %d, rank %d) for a %dx%d matrix of rank %d",
			header[2], header[4], rank, expected.users, expected.items, expected.rank)
	}
	factors := &Factors{
		Rank:        int(rank),
		UserFactors: newMatrix(int(header[2]), int(rank)),
		ItemFactors: newMatrix(int(header[4]), int(rank)),
	}
	if err = encoding.ReadMatrix(tr, factors.UserFactors); err != nil {
		return nil, errors.Trace(err)
	}
	if err = encoding.ReadMatrix(tr, factors.ItemFactors); err != nil {
		return nil, errors.Trace(err)
	}
	if err = encoding.ReadGob(tr, &factors.ExplainedVarianceRatio); err != nil {
		return nil, errors.Trace(err)
	}
	expected := checksum.Sum32()
	var actual uint32
	if err = binary.Read(r, binary.LittleEndian, &actual); err != nil {
		return nil, errors.Trace(err)
	}
	if actual != expected {
		return nil, errors.NotValidf("checksum %08x (expected %08x)", actual, expected)
	}
	if n, _ := r.Read(make([]byte, 1)); n > 0 {
		return nil, errors.NotValidf("trailing data")
	}
	return factors, nil
}

func newMatrix(rows, cols int) [][]float32 {
	data := make([]float32, rows*cols)
	matrix := make([][]float32, rows)
	for i := range matrix {
		matrix[i] = data[i*cols : (i+1)*cols]
	}
	return matrix
}

// Decomposer computes factors without caching.
type Decomposer struct {
	Rank    int
	Options Options
}

func (d Decomposer) Factors(ctx context.Context, m *dataset.Interactions) (*Factors, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return Decompose(m, d.Rank, d.Options)
}

// Store caches factors of a rank in a blob store. Cached factors are loaded verbatim. A cached artifact that
// cannot be decoded or does not match the interaction matrix is an error and is never replaced silently.
type Store struct {
	blob    blob.Store
	rank    int
	options Options
}

func NewStore(store blob.Store, rank int, options Options) *Store {
	return &Store{blob: store, rank: rank, options: options}
}

func (s *Store) Factors(ctx context.Context, m *dataset.Interactions) (*Factors, error) {
	return s.Load(ctx, m)
}

// Load returns cached factors if present, otherwise decomposes m and caches the result.
func (s *Store) Load(ctx context.Context, m *dataset.Interactions) (*Factors, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	name := ArtifactName(s.rank)
	exist, err := blob.Exists(s.blob, name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if exist {
		return s.load(name, m)
	}

	factors, err := Decompose(m, s.rank, s.options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	w, done, err := s.blob.Create(name)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to create %s", name)
	}
	if err = Marshal(w, factors); err != nil {
		_ = w.Close()
		<-done
		return nil, errors.Annotatef(err, "failed to write %s", name)
	}
	if err = w.Close(); err != nil {
		return nil, errors.Annotatef(err, "failed to close %s", name)
	}
	<-done
	log.Logger().Info("save latent factors", zap.String("name", name))
	return factors, nil
}

func (s *Store) load(name string, m *dataset.Interactions) (*Factors, error) {
	start := time.Now()
	r, err := s.blob.Open(name)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open %s", name)
	}
	defer r.Close()
	rows, cols := m.Shape()
	factors, err := unmarshal(r, &factorShape{rank: s.rank, users: rows, items: cols})
	if err != nil {
		return nil, errors.Annotatef(err, "corrupted latent factors %s", name)
	}
	log.Logger().Info("load latent factors",
		zap.String("name", name),
		zap.Int("rank", factors.Rank),
		zap.Duration("duration", time.Since(start)))
	return factors, nil
}
