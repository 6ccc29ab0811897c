package protocol

import (
	"bufio"
	"bytes"
	"io"

	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/json"
)

// LineKind tags one line of a metadata or query response
type LineKind int

const (
	// LineUnrecognized is a line carrying none of the known tags
	LineUnrecognized LineKind = iota
	// LineProtocol carries a Protocol
	LineProtocol
	// LineMetadata carries a Metadata
	LineMetadata
	// LineFile carries an AddFile
	LineFile
)

// Wire tags
const (
	TagProtocol = "protocol"
	TagMetadata = "metaData"
	TagFile     = "file"
)

func (k LineKind) String() string {
	switch k {
	case LineProtocol:
		return TagProtocol
	case LineMetadata:
		return TagMetadata
	case LineFile:
		return TagFile
	default:
		return "unrecognized"
	}
}

// Line is one decoded response line. Exactly one of the pointers is set,
// matching Kind.
type Line struct {
	Kind     LineKind
	Protocol *Protocol
	Metadata *Metadata
	File     *AddFile
}

// StreamResult accumulates the lines of one response. Protocol and Metadata
// are nil when the server omitted them.
type StreamResult struct {
	Protocol *Protocol
	Metadata *Metadata
	Files    []AddFile
}

// DecodeLine classifies and decodes one line
func DecodeLine(data []byte) (Line, error) {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return Line{}, errors.Wrap(err, errors.ErrorTypeMalformedRecord, "failed to decode response line").
			WithDetail(errors.DetailRecord, string(data))
	}

	kind := LineUnrecognized
	var payload json.RawMessage
	for key, raw := range tagged {
		k := kindOf(key)
		if k == LineUnrecognized || kind != LineUnrecognized {
			return Line{}, errors.New(errors.ErrorTypeMalformedRecord, "response line must carry exactly one of protocol, metaData or file").
				WithDetail(errors.DetailRecord, string(data))
		}
		kind, payload = k, raw
	}

	switch kind {
	case LineProtocol:
		p, err := DecodeProtocol(payload)
		if err != nil {
			return Line{}, err
		}
		return Line{Kind: kind, Protocol: &p}, nil
	case LineMetadata:
		m, err := DecodeMetadata(payload)
		if err != nil {
			return Line{}, err
		}
		return Line{Kind: kind, Metadata: &m}, nil
	case LineFile:
		f, err := DecodeAddFile(payload)
		if err != nil {
			return Line{}, err
		}
		return Line{Kind: kind, File: &f}, nil
	default:
		return Line{}, errors.New(errors.ErrorTypeMalformedRecord, "unrecognized response line").
			WithDetail(errors.DetailRecord, string(data))
	}
}

func kindOf(tag string) LineKind {
	switch tag {
	case TagProtocol:
		return LineProtocol
	case TagMetadata:
		return LineMetadata
	case TagFile:
		return LineFile
	default:
		return LineUnrecognized
	}
}

// ParseStream decodes a newline-delimited response body. Blank lines are
// skipped; any malformed line fails the whole parse.
func ParseStream(r io.Reader) (*StreamResult, error) {
	br := bufio.NewReader(r)
	result := &StreamResult{}
	lineNo := 0

	for {
		raw, readErr := br.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, errors.Wrap(readErr, errors.ErrorTypeTransport, "failed to read response body")
		}
		if len(raw) > 0 {
			lineNo++
			if err := result.add(bytes.TrimSpace(raw), lineNo); err != nil {
				return nil, err
			}
		}
		if readErr == io.EOF {
			return result, nil
		}
	}
}

func (sr *StreamResult) add(data []byte, lineNo int) error {
	if len(data) == 0 {
		return nil
	}

	line, err := DecodeLine(data)
	if err != nil {
		var e *errors.Error
		if errors.As(err, &e) {
			return e.WithDetail(errors.DetailLine, lineNo)
		}
		return err
	}

	switch line.Kind {
	case LineProtocol:
		if sr.Protocol != nil {
			return duplicate(TagProtocol, data, lineNo)
		}
		sr.Protocol = line.Protocol
	case LineMetadata:
		if sr.Metadata != nil {
			return duplicate(TagMetadata, data, lineNo)
		}
		sr.Metadata = line.Metadata
	case LineFile:
		sr.Files = append(sr.Files, *line.File)
	}
	return nil
}

func duplicate(tag string, data []byte, lineNo int) error {
	return errors.New(errors.ErrorTypeMalformedRecord, "response carries more than one "+tag+" line").
		WithDetail(errors.DetailRecord, string(data)).
		WithDetail(errors.DetailLine, lineNo)
}
