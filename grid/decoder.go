package grid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Batch is one unit of work handed over by the gridding pipeline: the raw
// samples of every duplicated grid point plus the group boundaries.
//
// Groups may be given directly as [start,end) pairs or through the 1-based
// MultiInd/UniqueInd tables; Groups wins when both are present.
type Batch struct {
	ID         string    `json:"id"`
	Source     string    `json:"source,omitempty"`
	Dims       []int     `json:"dims,omitempty"` // nx, ny, nz of the reconstruction grid
	Real       []float64 `json:"real"`
	Imag       []float64 `json:"imag"`
	Distance   []float64 `json:"distance"`
	Confidence []float64 `json:"confidence"`
	Groups     [][2]int  `json:"groups,omitempty"`
	MultiInd   []int     `json:"multiInd,omitempty"`
	UniqueInd  []int     `json:"uniqueInd,omitempty"`
	GridIndex  []int     `json:"gridIndex,omitempty"` // 0-based linear voxel index per group
}

// Store builds the sample arena of the batch.
func (b *Batch) Store() (*SampleStore, error) {
	return NewSampleStoreFromColumns(b.Real, b.Imag, b.Distance, b.Confidence)
}

// Ranges resolves the group boundaries of the batch.
func (b *Batch) Ranges() ([]Range, error) {
	if len(b.Groups) > 0 {
		ranges := make([]Range, len(b.Groups))
		for i, g := range b.Groups {
			ranges[i] = Range{Start: g[0], End: g[1]}
		}
		return ranges, nil
	}
	if len(b.MultiInd) > 0 {
		return GroupsFromUniqueIndex(b.MultiInd, b.UniqueInd)
	}
	return nil, fmt.Errorf("batch %q has neither groups nor multiInd/uniqueInd", b.ID)
}

// Compression selects the payload encoding used by EncodeBatch
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// DecodeBatch decodes a batch from various formats:
// - Raw JSON
// - Gzip-compressed JSON
// - Zstd-compressed JSON
// - Zlib-compressed JSON (fallback)
func DecodeBatch(data []byte) (*Batch, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	var jsonBytes []byte
	var err error

	switch {
	case data[0] == '{':
		jsonBytes = data
	case isGzip(data):
		jsonBytes, err = inflateGzip(data)
		if err != nil {
			return nil, err
		}
	case bytes.HasPrefix(data, zstdMagic):
		jsonBytes, err = inflateZstd(data)
		if err != nil {
			return nil, err
		}
	default:
		jsonBytes, err = inflateZlib(data)
		if err != nil {
			return nil, fmt.Errorf("unknown format: not JSON, gzip, zstd or zlib-compressed")
		}
	}

	if len(jsonBytes) == 0 {
		return nil, fmt.Errorf("decoded JSON payload is empty")
	}

	return ParseBatchJSON(jsonBytes)
}

// ParseBatchJSON parses an uncompressed batch document
func ParseBatchJSON(data []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return &b, nil
}

// ParseBatchFile reads and decodes a batch file in any supported encoding
func ParseBatchFile(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return DecodeBatch(data)
}

// EncodeBatch serialises a batch as JSON, optionally compressed.
func EncodeBatch(b *Batch, c Compression) ([]byte, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshaling batch: %w", err)
	}

	switch c {
	case CompressionNone:
		return raw, nil
	case CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, fmt.Errorf("gzip batch: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip batch: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		defer func() { _ = enc.Close() }()
		return enc.EncodeAll(raw, nil), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %d", c)
	}
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func inflateGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing gzip data: %w", err)
	}
	return out, nil
}

func inflateZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing zstd data: %w", err)
	}
	return out, nil
}

// inflateZlib decompresses zlib-compressed data
func inflateZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing zlib data: %w", err)
	}
	return out, nil
}
