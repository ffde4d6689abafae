// Package clearsign splits an armored OpenPGP clear-signed message into the
// human-readable payload, the canonical text the signature was computed
// over, and the armored signature block.
package clearsign

import (
	"bytes"
	"strings"

	licerrors "github.com/rcourtman/license-watcher/internal/errors"
)

var (
	messageStart   = []byte("-----BEGIN PGP SIGNED MESSAGE-----")
	signatureStart = []byte("-----BEGIN PGP SIGNATURE-----")
	signatureEnd   = []byte("-----END PGP SIGNATURE-----")
	dashEscape     = []byte("- ")
	crlf           = []byte("\r\n")
)

// Message is the decoded form of a clear-signed document.
type Message struct {
	// Content is the payload with dash-escaping removed. Every line ends
	// with a single LF.
	Content []byte
	// HashInput is the text the signature covers: trailing whitespace
	// stripped from each line, lines joined by CRLF, no terminator after
	// the last line.
	HashInput []byte
	// Hashes lists the digest names announced by the Hash armor headers.
	Hashes []string
	// Signature is the armored signature block, BEGIN through END line,
	// exactly as it appeared in the input.
	Signature []byte
}

// Decode parses an armored clear-signed message. Leading data before the
// BEGIN PGP SIGNED MESSAGE line is ignored.
func Decode(armored []byte) (*Message, error) {
	const op = "clearsign_decode"

	rest := armored
	var line []byte

	for {
		if len(rest) == 0 {
			return nil, licerrors.Malformed(op, "no %s line found", messageStart)
		}
		line, rest = nextLine(rest)
		if bytes.Equal(trimTrailing(line), messageStart) {
			break
		}
	}

	msg := &Message{}

	// Armor headers, terminated by an empty line.
	for {
		if len(rest) == 0 {
			return nil, licerrors.Malformed(op, "armor headers are not terminated")
		}
		line, rest = nextLine(rest)
		line = trimTrailing(line)
		if len(line) == 0 {
			break
		}
		key, value, ok := bytes.Cut(line, []byte(": "))
		if !ok {
			return nil, licerrors.Malformed(op, "invalid armor header %q", line)
		}
		if string(key) == "Hash" {
			for _, name := range strings.Split(string(value), ",") {
				if name = strings.TrimSpace(name); name != "" {
					msg.Hashes = append(msg.Hashes, name)
				}
			}
		}
	}

	content := make([]byte, 0, len(rest))
	hashInput := make([]byte, 0, len(rest))
	first := true

	for {
		if len(rest) == 0 {
			return nil, licerrors.Malformed(op, "no %s line found", signatureStart)
		}
		lineStart := len(armored) - len(rest)
		line, rest = nextLine(rest)
		if bytes.Equal(trimTrailing(line), signatureStart) {
			sig, err := signatureBlock(armored[lineStart:])
			if err != nil {
				return nil, err
			}
			msg.Signature = sig
			break
		}

		line = bytes.TrimPrefix(line, dashEscape)

		content = append(content, line...)
		content = append(content, '\n')

		if !first {
			hashInput = append(hashInput, crlf...)
		}
		hashInput = append(hashInput, trimTrailing(line)...)
		first = false
	}

	msg.Content = content
	msg.HashInput = hashInput
	return msg, nil
}

// signatureBlock returns data up to and including the END PGP SIGNATURE line.
func signatureBlock(data []byte) ([]byte, error) {
	rest := data
	for len(rest) > 0 {
		var line []byte
		line, rest = nextLine(rest)
		if bytes.HasPrefix(bytes.TrimSpace(line), signatureEnd) {
			return data[:len(data)-len(rest)], nil
		}
	}
	return nil, licerrors.Malformed("clearsign_decode", "no %s line found", signatureEnd)
}

// nextLine splits off one line, accepting LF, CR or CRLF as terminator. The
// returned line excludes the terminator.
func nextLine(data []byte) (line, rest []byte) {
	i := bytes.IndexAny(data, "\r\n")
	if i < 0 {
		return data, nil
	}
	line = data[:i]
	if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
		return line, data[i+2:]
	}
	return line, data[i+1:]
}

func trimTrailing(line []byte) []byte {
	return bytes.TrimRight(line, " \t\r\n")
}
