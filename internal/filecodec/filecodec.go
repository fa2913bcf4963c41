// Package filecodec is the seam to the binary file codec collaborator. The
// compressor itself (the coding tree) lives client-side; the server only
// checks that a relayed payload is structurally sound before fanning it out.
package filecodec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyTree and ErrEmptyBody mark structurally unusable payloads.
var (
	ErrEmptyTree = errors.New("filecodec: empty coding tree")
	ErrEmptyBody = errors.New("filecodec: empty body")
)

// Codec validates encoded file payloads crossing the relay in either
// direction.
type Codec interface {
	Validate(tree json.RawMessage, body string) error
}

// TreeCodec is the default Codec: the tree must be well-formed JSON and the
// body valid base64. Decompression is not attempted server-side.
type TreeCodec struct{}

// Validate implements Codec.
func (TreeCodec) Validate(tree json.RawMessage, body string) error {
	if len(tree) == 0 {
		return ErrEmptyTree
	}
	if !json.Valid(tree) {
		return errors.New("filecodec: coding tree is not valid JSON")
	}
	if body == "" {
		return ErrEmptyBody
	}
	if _, err := base64.StdEncoding.DecodeString(body); err != nil {
		return fmt.Errorf("filecodec: body is not valid base64: %w", err)
	}
	return nil
}
