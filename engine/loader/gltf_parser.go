package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidGLBMagic is returned when a GLB header does not start with "glTF".
	ErrInvalidGLBMagic = errors.New("loader: invalid GLB magic")
	// ErrUnsupportedGLBVersion is returned for GLB containers other than version 2.
	ErrUnsupportedGLBVersion = errors.New("loader: unsupported GLB version")
	// ErrInvalidChunkType is returned when the first chunk is not JSON or a JSON or BIN
	// chunk appears out of place.
	ErrInvalidChunkType = errors.New("loader: invalid GLB chunk type")
	// ErrTruncated is returned when a header or chunk runs past the end of the data.
	ErrTruncated = errors.New("loader: truncated GLB")
	// ErrUnsupportedGLTFVersion is returned for documents whose asset version is not 2.x.
	ErrUnsupportedGLTFVersion = errors.New("loader: unsupported glTF version")
	// ErrInvalidBufferURI is returned for buffer and image URIs the loader cannot resolve.
	ErrInvalidBufferURI = errors.New("loader: invalid buffer URI")
	// ErrBufferSizeMismatch is returned when a buffer holds fewer bytes than it declares.
	ErrBufferSizeMismatch = errors.New("loader: buffer size mismatch")
	// ErrIndexOutOfRange is returned when a document refers to an element it does not have.
	ErrIndexOutOfRange = errors.New("loader: index out of range")
)

// gltfParserImpl is the implementation of the gltfParser interface.
type gltfParserImpl struct {
	baseDir  string
	document *gltfDocument
	bin      []byte
}

// gltfParser loads a glTF or GLB container and resolves its buffers.
type gltfParser interface {
	// Parse loads and parses a glTF or GLB file. The format is detected from the magic
	// number, falling back to the extension.
	//
	// Parameters:
	//   - path: path to the file
	//
	// Returns:
	//   - error: error if reading or parsing fails
	Parse(path string) error

	// ParseReader parses a glTF document from a reader. External buffers resolve against
	// the working directory.
	//
	// Parameters:
	//   - r: reader containing glTF JSON or GLB data
	//   - isGLB: true if the data is in GLB format
	//
	// Returns:
	//   - error: error if parsing fails
	ParseReader(r io.Reader, isGLB bool) error

	// Document returns the parsed document, or nil before a successful parse.
	Document() *gltfDocument

	// BaseDir returns the directory external URIs resolve against.
	BaseDir() string

	// BufferView returns the bytes of a buffer view.
	//
	// Parameters:
	//   - index: the buffer view index
	//
	// Returns:
	//   - []byte: the bytes, aliasing the buffer
	//   - error: ErrIndexOutOfRange or ErrBufferSizeMismatch
	BufferView(index int) ([]byte, error)

	// LoadURI reads a data URI or a file relative to BaseDir.
	//
	// Parameters:
	//   - uri: the URI
	//
	// Returns:
	//   - []byte: the bytes
	//   - string: the MIME type of a data URI, empty for files
	//   - error: ErrInvalidBufferURI or the file error
	LoadURI(uri string) ([]byte, string, error)
}

var _ gltfParser = &gltfParserImpl{}

func newGLTFParser() gltfParser {
	return &gltfParserImpl{}
}

func (p *gltfParserImpl) Document() *gltfDocument {
	return p.document
}

func (p *gltfParserImpl) BaseDir() string {
	return p.baseDir
}

func (p *gltfParserImpl) Parse(path string) error {
	p.baseDir = filepath.Dir(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	isGLB := strings.EqualFold(filepath.Ext(path), ".glb") ||
		(len(data) >= 4 && binary.LittleEndian.Uint32(data[:4]) == GLBMagic)
	return p.parse(data, isGLB)
}

func (p *gltfParserImpl) ParseReader(r io.Reader, isGLB bool) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}
	return p.parse(data, isGLB)
}

func (p *gltfParserImpl) parse(data []byte, isGLB bool) error {
	jsonData := data
	if isGLB {
		var err error
		jsonData, p.bin, err = splitGLB(data)
		if err != nil {
			return err
		}
	}

	var doc gltfDocument
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("failed to parse glTF JSON: %w", err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return fmt.Errorf("%w: %q", ErrUnsupportedGLTFVersion, doc.Asset.Version)
	}
	if err := p.loadBuffers(&doc); err != nil {
		return err
	}
	p.document = &doc
	return nil
}

// splitGLB validates a GLB container and returns its JSON and optional BIN chunks. Chunks
// of unknown type after the JSON chunk are skipped.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#glb-file-format-specification
func splitGLB(data []byte) (jsonChunk, binChunk []byte, err error) {
	if len(data) < 12 {
		return nil, nil, fmt.Errorf("%w: %d byte header", ErrTruncated, len(data))
	}

	r := bytes.NewReader(data)
	var header gltfGLBHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, nil, fmt.Errorf("failed to read GLB header: %w", err)
	}
	if header.Magic != GLBMagic {
		return nil, nil, fmt.Errorf("%w: 0x%08X", ErrInvalidGLBMagic, header.Magic)
	}
	if header.Version != GLBVersion {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedGLBVersion, header.Version)
	}
	if int(header.Length) > len(data) {
		return nil, nil, fmt.Errorf("%w: header declares %d bytes, have %d", ErrTruncated, header.Length, len(data))
	}
	r = bytes.NewReader(data[12:header.Length])

	for i := 0; ; i++ {
		var ch gltfGLBChunkHeader
		if err := binary.Read(r, binary.LittleEndian, &ch); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, fmt.Errorf("%w: chunk %d header", ErrTruncated, i)
		}
		if int64(ch.ChunkLength) > int64(r.Len()) {
			return nil, nil, fmt.Errorf("%w: chunk %d declares %d bytes, have %d", ErrTruncated, i, ch.ChunkLength, r.Len())
		}
		chunk := make([]byte, ch.ChunkLength)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, nil, fmt.Errorf("%w: chunk %d", ErrTruncated, i)
		}

		switch {
		case i == 0 && ch.ChunkType != ChunkTypeJSON:
			return nil, nil, fmt.Errorf("%w: first chunk is 0x%08X", ErrInvalidChunkType, ch.ChunkType)
		case i == 0:
			jsonChunk = chunk
		case ch.ChunkType == ChunkTypeJSON:
			return nil, nil, fmt.Errorf("%w: second JSON chunk at %d", ErrInvalidChunkType, i)
		case ch.ChunkType == ChunkTypeBIN && (i != 1 || binChunk != nil):
			return nil, nil, fmt.Errorf("%w: BIN chunk at %d", ErrInvalidChunkType, i)
		case ch.ChunkType == ChunkTypeBIN:
			binChunk = chunk
		}
	}

	if jsonChunk == nil {
		return nil, nil, fmt.Errorf("%w: no JSON chunk", ErrInvalidChunkType)
	}
	return jsonChunk, binChunk, nil
}

// loadBuffers resolves every buffer from the BIN chunk, a data URI or a file.
func (p *gltfParserImpl) loadBuffers(doc *gltfDocument) error {
	for i := range doc.Buffers {
		buf := &doc.Buffers[i]

		switch {
		case buf.URI == "" && i == 0 && p.bin != nil:
			buf.data = p.bin
		case buf.URI == "":
			return fmt.Errorf("buffer %d: %w: no URI and no BIN chunk", i, ErrInvalidBufferURI)
		default:
			data, _, err := p.LoadURI(buf.URI)
			if err != nil {
				return fmt.Errorf("buffer %d: %w", i, err)
			}
			buf.data = data
		}

		if len(buf.data) < buf.ByteLength {
			return fmt.Errorf("buffer %d: %w: declares %d bytes, have %d", i, ErrBufferSizeMismatch, buf.ByteLength, len(buf.data))
		}
	}
	return nil
}

func (p *gltfParserImpl) LoadURI(uri string) ([]byte, string, error) {
	if strings.HasPrefix(uri, "data:") {
		return decodeDataURI(uri)
	}
	data, err := os.ReadFile(filepath.Join(p.baseDir, uri))
	if err != nil {
		return nil, "", fmt.Errorf("failed to load %q: %w", uri, err)
	}
	return data, "", nil
}

// decodeDataURI decodes data:[<mediatype>][;base64],<data>.
func decodeDataURI(uri string) ([]byte, string, error) {
	header, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: no comma in data URI", ErrInvalidBufferURI)
	}
	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("%w: unsupported data URI encoding %q", ErrInvalidBufferURI, header)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidBufferURI, err)
	}
	return data, mimeType, nil
}

func (p *gltfParserImpl) BufferView(index int) ([]byte, error) {
	doc := p.document
	if index < 0 || index >= len(doc.BufferViews) {
		return nil, fmt.Errorf("%w: buffer view %d", ErrIndexOutOfRange, index)
	}
	bv := &doc.BufferViews[index]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, fmt.Errorf("%w: buffer %d", ErrIndexOutOfRange, bv.Buffer)
	}
	data := doc.Buffers[bv.Buffer].data
	end := bv.ByteOffset + bv.ByteLength
	if bv.ByteOffset < 0 || end > len(data) {
		return nil, fmt.Errorf("buffer view %d: %w: [%d, %d) of %d bytes", index, ErrBufferSizeMismatch, bv.ByteOffset, end, len(data))
	}
	return data[bv.ByteOffset:end], nil
}

// gltfAccessorTypeComponentCount returns the number of components of an accessor type.
func gltfAccessorTypeComponentCount(accessorType string) uint32 {
	switch accessorType {
	case gltfAccessorTypeScalar:
		return 1
	case gltfAccessorTypeVec2:
		return 2
	case gltfAccessorTypeVec3:
		return 3
	case gltfAccessorTypeVec4, gltfAccessorTypeMat2:
		return 4
	case gltfAccessorTypeMat3:
		return 9
	case gltfAccessorTypeMat4:
		return 16
	default:
		return 0
	}
}
