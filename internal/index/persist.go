package index

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/pkg/models"
)

// On-disk layout kept compatible with earlier deployments: the vector block
// and the payload block live in separate files.
const (
	vectorFileName  = "faiss_index.bin"
	payloadFileName = "embeddings_cache.pkl"

	vectorMagic   = "MVIX"
	vectorVersion = 1
)

type persistPayload struct {
	Items []models.ContentItem
}

// Save writes the index to its directory. Each file is written to a temp
// sibling, fsynced and renamed, so a crash never leaves a torn file behind.
func (idx *VectorIndex) Save() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(idx.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	if err := writeAtomic(filepath.Join(idx.dir, vectorFileName), func(w io.Writer) error {
		return encodeVectors(w, idx.dim, idx.vectors)
	}); err != nil {
		return fmt.Errorf("failed to persist vector block: %w", err)
	}

	if err := writeAtomic(filepath.Join(idx.dir, payloadFileName), func(w io.Writer) error {
		items := make([]models.ContentItem, len(idx.items))
		for i, item := range idx.items {
			items[i] = item.Sanitized()
		}
		return gob.NewEncoder(w).Encode(persistPayload{Items: items})
	}); err != nil {
		return fmt.Errorf("failed to persist payload block: %w", err)
	}

	idx.logger.WithField("items", len(idx.items)).Info("Index persisted")
	return nil
}

// Load restores the index from disk. A missing or corrupt snapshot yields an
// empty index and a nil error; the catalogue can always be re-ingested.
func (idx *VectorIndex) Load() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	vectors, err := readVectors(filepath.Join(idx.dir, vectorFileName), idx.dim)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			idx.logger.WithError(err).Warn("Discarding unreadable index snapshot")
		}
		idx.resetLocked()
		return nil
	}

	payload, err := readPayload(filepath.Join(idx.dir, payloadFileName))
	if err != nil || len(payload.Items) != len(vectors) {
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			idx.logger.WithError(err).Warn("Discarding unreadable payload snapshot")
		} else if err == nil {
			idx.logger.WithFields(logrus.Fields{
				"vectors": len(vectors),
				"items":   len(payload.Items),
			}).Warn("Index snapshot blocks disagree, discarding")
		}
		idx.resetLocked()
		return nil
	}

	idx.vectors = vectors
	idx.items = payload.Items
	idx.byKey = make(map[models.ContentKey]int, len(payload.Items))
	for i := range idx.items {
		idx.items[i].Embedding = vectors[i]
		idx.byKey[idx.items[i].Key()] = i
	}

	idx.backend = newFlat()
	idx.backend.rebuild(idx.vectors)

	idx.logger.WithField("items", len(idx.items)).Info("Index restored from disk")
	return nil
}

func (idx *VectorIndex) resetLocked() {
	idx.vectors = nil
	idx.items = nil
	idx.byKey = make(map[models.ContentKey]int)
	idx.backend = newFlat()
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func encodeVectors(w io.Writer, dim int, vectors [][]float32) error {
	if _, err := w.Write([]byte(vectorMagic)); err != nil {
		return err
	}

	header := []uint32{vectorVersion, uint32(dim), uint32(len(vectors))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	buf := make([]byte, 4)
	for _, vec := range vectors {
		for _, x := range vec {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func readVectors(path string, dim int) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	magic := make([]byte, len(vectorMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("truncated header: %w", err)
	}
	if string(magic) != vectorMagic {
		return nil, fmt.Errorf("bad magic %q", magic)
	}

	var version, fileDim, count uint32
	for _, dest := range []*uint32{&version, &fileDim, &count} {
		if err := binary.Read(r, binary.LittleEndian, dest); err != nil {
			return nil, fmt.Errorf("truncated header: %w", err)
		}
	}
	if version != vectorVersion {
		return nil, fmt.Errorf("unsupported version %d", version)
	}
	if int(fileDim) != dim {
		return nil, fmt.Errorf("snapshot dimension %d, want %d", fileDim, dim)
	}

	vectors := make([][]float32, count)
	buf := make([]byte, 4*dim)
	for i := range vectors {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("truncated vector block: %w", err)
		}
		vec := make([]float32, dim)
		for d := 0; d < dim; d++ {
			vec[d] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*d:]))
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func readPayload(path string) (persistPayload, error) {
	f, err := os.Open(path)
	if err != nil {
		return persistPayload{}, err
	}
	defer f.Close()

	var payload persistPayload
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&payload); err != nil {
		return persistPayload{}, fmt.Errorf("failed to decode payload block: %w", err)
	}
	return payload, nil
}
