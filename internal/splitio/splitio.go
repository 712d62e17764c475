// Copyright 2025 The packetd Authors
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

// Package splitio splits an in-memory byte buffer into lines without
// copying. Unlike *bufio.Scanner it hands out sub-slices of the original
// buffer, so callers must treat every returned line as read-only.
package splitio

import (
	"bytes"
)

var (
	CharCRLF = []byte("\r\n")
	CharCR   = []byte("\r")
	CharLF   = []byte("\n")
)

// Scanner walks b one LF-terminated line at a time. Returned slices
// include their trailing delimiter; use TrimDelim to strip it.
type Scanner struct {
	l, r int
	buf  []byte
}

func NewScanner(b []byte) *Scanner {
	return &Scanner{buf: b}
}

// Scan advances to the next line, returning false at end of input. A
// trailing chunk with no final LF still counts as one last line.
func (s *Scanner) Scan() bool {
	s.l = s.r
	if len(s.buf) == s.l {
		return false
	}

	idx := bytes.IndexByte(s.buf[s.l:], CharLF[0])
	if idx == -1 {
		s.r = len(s.buf)
	} else {
		s.r = s.l + idx + 1
	}
	return true
}

// Bytes returns the current line, delimiter included. Copy before
// modifying.
func (s *Scanner) Bytes() []byte {
	return s.buf[s.l:s.r]
}

// TrimDelim strips one trailing CRLF or bare LF from line. A lone CR in
// the middle of a line is data, not a delimiter.
func TrimDelim(line []byte) []byte {
	line = bytes.TrimSuffix(line, CharLF)
	return bytes.TrimSuffix(line, CharCR)
}

// Reader is a line-at-a-time pull API over a Scanner.
type Reader struct {
	r, w    int
	scanner *Scanner
}

func NewReader(b []byte) *Reader {
	return &Reader{
		w:       len(b),
		scanner: NewScanner(b),
	}
}

// ReadLine returns the next line (delimiter included) and eof=true once
// the input is exhausted.
func (lr *Reader) ReadLine() (line []byte, eof bool) {
	if !lr.scanner.Scan() {
		return nil, true
	}

	b := lr.scanner.Bytes()
	lr.r += len(b)
	return b, false
}

// EOF reports whether every byte has been consumed.
func (lr *Reader) EOF() bool {
	return lr.r >= lr.w
}
