package bithenge

import (
	"encoding/hex"
	"os"
	"strings"

	"github.com/bithenge/bithenge/internal/diag"
)

// NodeFromSource builds a root Blob node from a "scheme:payload" string
// (spec §6.1), grounded on original_source/.../source.c's
// bithenge_node_from_source:
//
//   - "file:PATH" opens a regular file.
//   - "hex:HEX" decodes an even-length hex string to bytes.
//   - "block:SERVICE" opens a block device by service name; this is a
//     HelenOS-specific facility with no portable Go equivalent, so it
//     always fails ENOTSUP here (see DESIGN.md).
//   - A string with no colon is treated as a file path, same as the
//     "file:" scheme.
func NodeFromSource(source string) (Node, error) {
	scheme, payload, hasColon := strings.Cut(source, ":")
	if !hasColon {
		return fileBlob(source)
	}
	switch scheme {
	case "file":
		return fileBlob(payload)
	case "hex":
		return hexBlob(payload)
	case "block":
		return nil, diag.Errorf(diag.ENOTSUP, "block: sources require a HelenOS block-device adapter")
	default:
		return nil, diag.Errorf(diag.EINVAL, "unrecognized source scheme %q", scheme)
	}
}

func fileBlob(path string) (Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, diag.Errorf(diag.ENOENT, "%s: %v", path, err)
		}
		return nil, diag.Errorf(diag.EIO, "%s: %v", path, err)
	}
	return NewMemoryBlob(data), nil
}

func hexBlob(text string) (Node, error) {
	if len(text)%2 != 0 {
		return nil, diag.Errorf(diag.EINVAL, "hex source has odd length")
	}
	data, err := hex.DecodeString(text)
	if err != nil {
		return nil, diag.Errorf(diag.EINVAL, "hex source: %v", err)
	}
	return NewMemoryBlob(data), nil
}
